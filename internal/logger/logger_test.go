package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerLevels(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SetupLogger(tt.in).GetLevel(), tt.in)
	}
}

func TestSetupLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := SetupLogger("info")
	log.SetOutput(&buf)
	log.WithField("tracking_id", "alpha-20").Info("Tag claimed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Tag claimed", line["msg"])
	assert.Equal(t, "alpha-20", line["tracking_id"])
}
