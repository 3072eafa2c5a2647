package optbacktest

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const kDefaultConfigFile = "optbacktest.yaml"

type SolverConfig struct {
	MaxIterations   int     `yaml:"max_iterations"`
	Tolerance       float64 `yaml:"tolerance"`
	AcceptTolerance float64 `yaml:"accept_tolerance"`
	MinSigma        float64 `yaml:"min_sigma"`
	MaxSigma        float64 `yaml:"max_sigma"`
	MaxPriceToSpot  float64 `yaml:"max_price_to_spot"`
	MinVega         float64 `yaml:"min_vega"`
}

type SplitConfig struct {
	Date  string  `yaml:"date"`
	Ratio float64 `yaml:"ratio"`
}

// BandConfig overrides the monthly probability band of one ticker.
type BandConfig struct {
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`
	FallbackMin float64 `yaml:"fallback_min"`
	FallbackMax float64 `yaml:"fallback_max"`
}

type YearlyConfig struct {
	MonthlyPeriod string                `yaml:"monthly_period"`
	WeeklyPeriod  string                `yaml:"weekly_period"`
	Bands         map[string]BandConfig `yaml:"bands"`
}

type Config struct {
	// Data layout: <data_dir>/<TICKER>/<subdir>/<file_pattern>
	DataDir     string   `yaml:"data_dir"`
	Subdirs     []string `yaml:"subdirs"`
	FilePattern string   `yaml:"file_pattern"`
	OutputDir   string   `yaml:"output_dir"`

	DefaultRate float64 `yaml:"default_rate"`
	MinPrice    float64 `yaml:"min_price"`
	Decimals    int     `yaml:"decimals"`
	OnlyMissing bool    `yaml:"only_missing"`

	Workers     int    `yaml:"workers"`
	DryRun      bool   `yaml:"dry_run"`
	Progress    bool   `yaml:"progress"`
	MetricsFile string `yaml:"metrics_file"`

	Solver SolverConfig             `yaml:"solver"`
	Splits map[string][]SplitConfig `yaml:"splits"`
	Yearly YearlyConfig             `yaml:"yearly"`
}

func defaultSplits() map[string][]SplitConfig {
	return map[string][]SplitConfig{
		"TSLA": {{Date: "2020-08-31", Ratio: 5}, {Date: "2022-08-25", Ratio: 3}},
		"AAPL": {{Date: "2020-08-31", Ratio: 4}},
		"AMZN": {{Date: "2022-06-06", Ratio: 20}},
		"GOOG": {{Date: "2022-07-18", Ratio: 20}},
		"NVDA": {{Date: "2021-07-20", Ratio: 4}, {Date: "2024-06-10", Ratio: 10}},
	}
}

func defaultBands() map[string]BandConfig {
	return map[string]BandConfig{
		"AAPL": {Min: 0.07, Max: 0.11, FallbackMin: 0.04, FallbackMax: 0.11},
	}
}

// DefaultConfig reads the environment, falling back to built in values.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     getEnv("OPTBACKTEST_DATA_DIR", "data"),
		Subdirs:     getEnvStringSlice("OPTBACKTEST_SUBDIRS", []string{"holidays", "monthly", "weekly"}),
		FilePattern: getEnv("OPTBACKTEST_FILE_PATTERN", "*_options_pessimistic.csv"),
		OutputDir:   getEnv("OPTBACKTEST_OUTPUT_DIR", ""),
		DefaultRate: getEnvFloat("OPTBACKTEST_DEFAULT_RATE", kDefaultRate),
		MinPrice:    getEnvFloat("OPTBACKTEST_MIN_PRICE", kDefaultMinPrice),
		Decimals:    getEnvInt("OPTBACKTEST_DECIMALS", kDefaultDecimals),
		OnlyMissing: getEnvBool("OPTBACKTEST_ONLY_MISSING", false),
		Workers:     getEnvInt("OPTBACKTEST_WORKERS", 4),
		DryRun:      getEnvBool("OPTBACKTEST_DRY_RUN", false),
		Progress:    getEnvBool("OPTBACKTEST_PROGRESS", true),
		MetricsFile: getEnv("OPTBACKTEST_METRICS_FILE", ""),
		Solver: SolverConfig{
			MaxIterations:   getEnvInt("OPTBACKTEST_IV_MAX_ITERATIONS", kDefaultMaxIterations),
			Tolerance:       getEnvFloat("OPTBACKTEST_IV_TOLERANCE", kDefaultTolerance),
			AcceptTolerance: getEnvFloat("OPTBACKTEST_IV_ACCEPT_TOLERANCE", kDefaultAcceptTolerance),
			MinSigma:        kDefaultMinSigma,
			MaxSigma:        getEnvFloat("OPTBACKTEST_IV_MAX_SIGMA", kDefaultMaxSigma),
			MaxPriceToSpot:  kDefaultMaxPriceToSpot,
			MinVega:         kDefaultMinVega,
		},
		Splits: defaultSplits(),
		Yearly: YearlyConfig{
			MonthlyPeriod: getEnv("OPTBACKTEST_MONTHLY_PERIOD", "monthly"),
			WeeklyPeriod:  getEnv("OPTBACKTEST_WEEKLY_PERIOD", "holidays"),
			Bands:         defaultBands(),
		},
	}
}

// LoadConfig loads .env, then environment defaults, then overlays the YAML
// file at path. An empty path tries optbacktest.yaml in the working
// directory; a missing default file is not an error, a missing explicit one
// is.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		glog.Warning("Loading .env failed: ", err)
	}

	cfg := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = kDefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			glog.V(1).Info("No config file, using defaults.")
			return cfg, cfg.Validate()
		}
		msg := fmt.Sprintf("Reading config %s failed with error=%s", path, err)
		glog.Error(msg)
		return nil, errors.New(msg)
	}

	// yaml.v2 merges into non-nil maps, so a file that lists splits or bands
	// replaces the built in ones instead of adding to them.
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		if _, ok := raw["splits"]; ok {
			cfg.Splits = nil
		}
		if yearly, ok := raw["yearly"].(map[interface{}]interface{}); ok {
			if _, ok := yearly["bands"]; ok {
				cfg.Yearly.Bands = nil
			}
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		msg := fmt.Sprintf("Parsing config %s failed with error=%s", path, err)
		glog.Error(msg)
		return nil, errors.New(msg)
	}
	glog.Info("Loaded config ", path)
	return cfg, cfg.Validate()
}

func (self *Config) Validate() error {
	problems := []string{}
	if self.Workers < 1 {
		problems = append(problems, "workers must be at least 1")
	}
	if self.Decimals < 0 {
		problems = append(problems, "decimals must not be negative")
	}
	if self.Solver.MaxIterations < 1 {
		problems = append(problems, "solver.max_iterations must be at least 1")
	}
	if self.Solver.MaxSigma <= self.Solver.MinSigma {
		problems = append(problems, "solver.max_sigma must exceed min_sigma")
	}
	if _, err := self.SplitSchedules(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := self.YearlyPlan(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		msg := "Invalid config: " + strings.Join(problems, "; ")
		glog.Error(msg)
		return errors.New(msg)
	}
	return nil
}

func (self *Config) IvSolver() *IvSolver {
	return &IvSolver{
		MaxIterations:   self.Solver.MaxIterations,
		Tolerance:       self.Solver.Tolerance,
		AcceptTolerance: self.Solver.AcceptTolerance,
		MinSigma:        self.Solver.MinSigma,
		MaxSigma:        self.Solver.MaxSigma,
		MaxPriceToSpot:  self.Solver.MaxPriceToSpot,
		MinVega:         self.Solver.MinVega,
	}
}

func (self *Config) IvProbOptions() IvProbOptions {
	return IvProbOptions{
		Solver:      self.IvSolver(),
		DefaultRate: self.DefaultRate,
		MinPrice:    self.MinPrice,
		Decimals:    self.Decimals,
		OnlyMissing: self.OnlyMissing,
	}
}

// SplitSchedules parses the per ticker split lists. Ticker keys are upper
// cased; two keys naming the same ticker are an error.
func (self *Config) SplitSchedules() (map[string]*SplitSchedule, error) {
	schedules := make(map[string]*SplitSchedule, len(self.Splits))
	for ticker, splits := range self.Splits {
		if _, dup := schedules[strings.ToUpper(ticker)]; dup {
			return nil, duplicateTickerError("splits", ticker)
		}
		events := make([]SplitEvent, 0, len(splits))
		for _, split := range splits {
			event, err := NewSplitEvent(split.Date, split.Ratio)
			if err != nil {
				return nil, fmt.Errorf("splits.%s: %w", ticker, err)
			}
			events = append(events, event)
		}
		schedules[strings.ToUpper(ticker)] = NewSplitSchedule(events...)
	}
	return schedules, nil
}

// YearlyPlan builds the yearly report plan. Band overrides keep the monthly
// period count.
func (self *Config) YearlyPlan() (YearlyPlan, error) {
	plan := NewYearlyPlan()
	if self.Yearly.MonthlyPeriod != "" {
		plan.MonthlyPeriod = self.Yearly.MonthlyPeriod
	}
	if self.Yearly.WeeklyPeriod != "" {
		plan.WeeklyPeriod = self.Yearly.WeeklyPeriod
	}
	for ticker, band := range self.Yearly.Bands {
		key := strings.ToUpper(ticker)
		if _, dup := plan.Bands[key]; dup {
			return YearlyPlan{}, duplicateTickerError("yearly.bands", ticker)
		}
		if band.Min < 0 || band.Max > 1 || band.Min > band.Max ||
			band.FallbackMin > band.FallbackMax {
			msg := fmt.Sprintf("yearly.bands.%s: invalid range %+v", ticker, band)
			glog.Error(msg)
			return YearlyPlan{}, errors.New(msg)
		}
		fallbackMin, fallbackMax := band.FallbackMin, band.FallbackMax
		if fallbackMin == 0 && fallbackMax == 0 {
			fallbackMin, fallbackMax = band.Min, band.Max
		}
		plan.Bands[key] = ProbabilityBand{
			Min:            band.Min,
			Max:            band.Max,
			FallbackMin:    fallbackMin,
			FallbackMax:    fallbackMax,
			PeriodsPerYear: plan.MonthlyBand.PeriodsPerYear,
		}
	}
	return plan, nil
}

func duplicateTickerError(section, ticker string) error {
	msg := fmt.Sprintf("%s: %s is listed more than once (keys are case insensitive)",
		section, ticker)
	glog.Error(msg)
	return errors.New(msg)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		glog.Warningf("Ignoring %s=%q, not an integer.", key, value)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		glog.Warningf("Ignoring %s=%q, not a number.", key, value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		glog.Warningf("Ignoring %s=%q, not a boolean.", key, value)
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
