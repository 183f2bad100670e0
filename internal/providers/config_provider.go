package providers

import (
	"fmt"
	"path/filepath"
	"pvz/internal/structures"
	"strings"

	"github.com/spf13/viper"
)

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	v := viper.New()
	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")

	v.SetDefault("thresholds.fresh", 90)
	v.SetDefault("thresholds.rotting", 180)
	v.SetDefault("thresholds.ancient", 365)

	_ = v.BindEnv("logger.level", "PVZ_LOG_LEVEL")
	_ = v.BindEnv("relays.default", "PVZ_RELAYS")
	_ = v.BindEnv("thresholds.fresh", "PVZ_THRESHOLD_FRESH")
	_ = v.BindEnv("thresholds.rotting", "PVZ_THRESHOLD_ROTTING")
	_ = v.BindEnv("thresholds.ancient", "PVZ_THRESHOLD_ANCIENT")
	_ = v.BindEnv("cache.enabled", "PVZ_CACHE_ENABLED")
	_ = v.BindEnv("cache.size", "PVZ_CACHE_SIZE")

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.Relays.Default = splitRelays(conf.Relays.Default)

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = "PlebsVsZombies"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}

// splitRelays expands comma separated entries coming from PVZ_RELAYS.
func splitRelays(relays []string) []string {
	out := make([]string, 0, len(relays))
	for _, r := range relays {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
