package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func zapcoreEncoderNoColor() zapcore.Encoder {
	cfg := NewLoggerConfig().EncoderConfig
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func newBufferLogger(level Level) (*impl, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	appender := ConsoleAppender{buf, zapcoreEncoderNoColor()}
	return newImpl("impl", level, true, appender), buf
}

func TestConsoleOutputFormat(t *testing.T) {
	logger, buf := newBufferLogger(DEBUG)

	logger.Info("impl Info log")
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	parts := strings.Split(strings.TrimSuffix(line, "\n"), "\t")
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, parts[1], test.ShouldEqual, "INFO")
	test.That(t, parts[2], test.ShouldEqual, "impl")
	test.That(t, parts[3], test.ShouldStartWith, "logging/impl_test.go:")
	test.That(t, parts[4], test.ShouldEqual, "impl Info log")

	logger.Infow("impl logw", "key", "value")
	line, err = buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, line, test.ShouldContainSubstring, "impl logw")
	test.That(t, line, test.ShouldContainSubstring, `"key"`)
	test.That(t, line, test.ShouldContainSubstring, `"value"`)
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(WARN)

	logger.Debug("hidden")
	logger.Infof("hidden %d", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warnf("shown %d", 2)
	test.That(t, buf.String(), test.ShouldContainSubstring, "shown 2")

	logger.SetLevel(ERROR)
	buf.Reset()
	logger.Warn("hidden")
	test.That(t, buf.Len(), test.ShouldEqual, 0)
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)
}

func TestSubloggerAndFields(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)

	sub := logger.Sublogger("density").WithFields("run", "abc")
	sub.Infow("scored", "vertices", 10)

	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "density")
	ctx := entries[0].ContextMap()
	test.That(t, ctx["run"], test.ShouldEqual, "abc")
	test.That(t, ctx["vertices"], test.ShouldEqual, int64(10))

	sub.Sublogger("workers").Warn("nested")
	test.That(t, observed.FilterMessage("nested").All()[0].LoggerName, test.ShouldEqual, "density.workers")
}

func TestUnpairedKey(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Infow("msg", "lonely")
	test.That(t, observed.All()[0].ContextMap()["lonely"], test.ShouldNotBeNil)
}

func TestLevelFromString(t *testing.T) {
	for input, expected := range map[string]Level{
		"debug": DEBUG,
		"INFO":  INFO,
		"":      INFO,
		"Warn":  WARN,
		"error": ERROR,
	} {
		level, err := LevelFromString(input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loud")
}
