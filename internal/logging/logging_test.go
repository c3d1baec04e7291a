package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_LevelParsing(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New(Config{Level: "debug"}).GetLevel())
	assert.Equal(t, zerolog.WarnLevel, New(Config{Level: "warn"}).GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, New(Config{Level: "error"}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: "unknown"}).GetLevel())
}

func TestComponent_TagsLoggerWithComponentName(t *testing.T) {
	var buf bytes.Buffer
	root := zerolog.New(&buf)
	child := Component(root, "position")
	child.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"position"`)
}
