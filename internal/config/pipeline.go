package config

import (
	"fmt"

	"github.com/Veraticus/trial-balance-export/internal/export"
	"github.com/Veraticus/trial-balance-export/internal/pipeline"
	"github.com/spf13/viper"
)

// LoadPipelineConfig overlays pipeline.* keys on the stock limits and weights.
func LoadPipelineConfig() (*pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()

	if v := viper.GetString("pipeline.mode"); v != "" {
		cfg.Mode = pipeline.Mode(v)
	}
	if viper.IsSet("pipeline.max_sheets") {
		cfg.MaxSheets = viper.GetInt("pipeline.max_sheets")
	}
	if viper.IsSet("pipeline.preview_bytes") {
		cfg.PreviewBytes = viper.GetInt("pipeline.preview_bytes")
	}

	if viper.IsSet("pipeline.max_depth") {
		cfg.Flatten.MaxDepth = viper.GetInt("pipeline.max_depth")
	}
	if viper.IsSet("pipeline.max_cell_chars") {
		cfg.Flatten.MaxCellChars = viper.GetInt("pipeline.max_cell_chars")
	}
	if viper.IsSet("pipeline.noisy_patterns") {
		cfg.Flatten.NoisyPatterns = viper.GetStringSlice("pipeline.noisy_patterns")
	}

	if viper.IsSet("pipeline.trial_bonus") {
		cfg.Extract.TrialBonus = viper.GetInt("pipeline.trial_bonus")
	}
	if viper.IsSet("pipeline.values_bonus") {
		cfg.Extract.ValuesBonus = viper.GetInt("pipeline.values_bonus")
	}
	if viper.IsSet("pipeline.rows_bonus") {
		cfg.Extract.RowsBonus = viper.GetInt("pipeline.rows_bonus")
	}

	if viper.IsSet("pipeline.allow_substring") {
		cfg.Mapping.AllowSubstring = viper.GetBool("pipeline.allow_substring")
	}
	if viper.IsSet("pipeline.aliases") {
		if err := viper.UnmarshalKey("pipeline.aliases", &cfg.Mapping.Aliases); err != nil {
			return nil, fmt.Errorf("failed to read pipeline.aliases: %w", err)
		}
	}

	if viper.IsSet("pipeline.header_keywords") {
		cfg.Decode.HeaderKeywords = viper.GetStringSlice("pipeline.header_keywords")
	}
	if viper.IsSet("pipeline.header_scan_rows") {
		cfg.Decode.HeaderScanRows = viper.GetInt("pipeline.header_scan_rows")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return &cfg, nil
}

// LoadExportConfig loads the export orchestrator settings.
func LoadExportConfig() (*export.Config, error) {
	cfg := export.DefaultConfig()
	cfg.UserEmail = LoadUserEmail()
	if viper.IsSet("export.concurrency") {
		cfg.Concurrency = viper.GetInt("export.concurrency")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid export config: %w", err)
	}
	return &cfg, nil
}
