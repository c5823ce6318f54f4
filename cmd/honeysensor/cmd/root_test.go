package cmd

import (
	"context"
	"testing"

	hsconfig "github.com/edoardooldani/honeysensor/cmd/honeysensor/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmdBindsFlagsIntoConfig(t *testing.T) {
	viper.Reset()

	var captured *hsconfig.Config
	testRunFunc := func(ctx context.Context, cfg *hsconfig.Config) error {
		captured = cfg
		return nil
	}

	rootCmd, err := newRootCmd(testRunFunc)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{
		"--interface.name=eth0",
		"--model.autoencoder_path=/models/ae.onnx",
		"--model.autoencoder_scaler=/models/ae_scaler.json",
		"--model.classifier_path=/models/cls.onnx",
		"--model.classifier_scaler=/models/cls_scaler.json",
		"--collector.url=wss://collector.internal:8443/ingest",
		"--collector.cert_file=/certs/sensor.pem",
		"--collector.key_file=/certs/sensor-key.pem",
		"--collector.ca_file=/certs/ca.pem",
		"--virtual.count=5",
		"--virtual.ipv4_range_min=150",
		"--virtual.ipv4_range_max=200",
	})

	err = rootCmd.Execute()
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Equal(t, "eth0", captured.Interface.Name)
	assert.Equal(t, "/models/ae.onnx", captured.Model.AutoencoderPath)
	assert.Equal(t, "wss://collector.internal:8443/ingest", captured.Collector.URL)
	assert.Equal(t, 5, captured.Virtual.Count)
	assert.Equal(t, 150, captured.Virtual.IPv4RangeMin)
	assert.Equal(t, 200, captured.Virtual.IPv4RangeMax)
}

func TestNewRootCmdRejectsIncompleteConfig(t *testing.T) {
	viper.Reset()

	testRunFunc := func(ctx context.Context, cfg *hsconfig.Config) error {
		return nil
	}

	rootCmd, err := newRootCmd(testRunFunc)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{"--interface.name=eth0"})
	err = rootCmd.Execute()
	assert.Error(t, err)
}
