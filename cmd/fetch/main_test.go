package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"goldprice/internal/model"
)

func sampleOutput() output {
	at := time.Date(2025, 3, 3, 3, 0, 0, 0, time.UTC)
	return output{
		Tier:      "estimate",
		Currency:  "IDR",
		FetchedAt: at,
		Prices: []model.GoldPriceData{
			{Karat: 24, Name: "Emas 24 Karat", Purity: "99.9% Murni", PricePerGram: 1_125_000, Currency: "IDR", Timestamp: at},
		},
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, write(&buf, "json", sampleOutput()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "estimate", got["tier"])
	require.NotContains(t, got, "runId")
	prices := got["prices"].([]any)
	require.Equal(t, 1_125_000.0, prices[0].(map[string]any)["pricePerGram"])
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, write(&buf, "yaml", sampleOutput()))

	var got struct {
		Tier   string `yaml:"tier"`
		Prices []struct {
			Karat        int     `yaml:"karat"`
			PricePerGram float64 `yaml:"price_per_gram"`
		} `yaml:"prices"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "estimate", got.Tier)
	require.Equal(t, 24, got.Prices[0].Karat)
	require.Equal(t, 1_125_000.0, got.Prices[0].PricePerGram)
}

func TestWrite_UnknownFormat(t *testing.T) {
	require.Error(t, write(&bytes.Buffer{}, "xml", sampleOutput()))
}
