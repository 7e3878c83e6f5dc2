// Package selfcal runs an iterative self-calibration loop over one
// measurement set: an initial image, then N rounds of gaincal against
// the model column followed by re-imaging.
package selfcal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-borne parameter set of the loop.
type Config struct {
	ContainerImages struct {
		Linc string `yaml:"linc"`
	} `yaml:"container_images"`

	SelfCal struct {
		Iterations           int     `yaml:"iterations"`
		SmoothnessConstraint float64 `yaml:"smoothness_constraint"`
		SolverType           string  `yaml:"solver_type"`
		MaxIterations        int     `yaml:"max_iterations"`
		Tolerance            float64 `yaml:"tolerance"`
	} `yaml:"selfcal_params"`

	DP3 struct {
		NTime            int    `yaml:"ntime"`
		WriteFullResFlag bool   `yaml:"write_full_res_flag"`
		SolutionInterval int    `yaml:"solution_interval"`
		CalibrationType  string `yaml:"calibration_type"`
		ApplySmooth      bool   `yaml:"apply_smooth"`
		UseModelColumn   bool   `yaml:"use_model_column"`
		ModelColumn      string `yaml:"model_column"`
	} `yaml:"dp3_params"`

	Imaging struct {
		ImageSize       int     `yaml:"image_size"`
		PixelScale      string  `yaml:"pixel_scale"`
		Weighting       string  `yaml:"weighting"`
		BriggsRobust    float64 `yaml:"briggs_robust"`
		CleanIterations int     `yaml:"clean_iterations"`
		MGain           float64 `yaml:"mgain"`
		AutoThreshold   float64 `yaml:"auto_threshold"`
		AutoMask        float64 `yaml:"auto_mask"`
		MemPercentage   int     `yaml:"mem_percentage"`
	} `yaml:"imaging_params"`
}

// DefaultConfig matches the shipped selfcal configuration.
func DefaultConfig() Config {
	var c Config
	c.ContainerImages.Linc = "astronrd/linc:latest"
	c.SelfCal.Iterations = 3
	c.SelfCal.SmoothnessConstraint = 2e6
	c.SelfCal.SolverType = "directioniterative"
	c.SelfCal.MaxIterations = 100
	c.SelfCal.Tolerance = 1e-4
	c.DP3.NTime = 1
	c.DP3.CalibrationType = "diagonal"
	c.DP3.ApplySmooth = true
	c.DP3.UseModelColumn = true
	c.DP3.ModelColumn = "MODEL_DATA"
	c.Imaging.ImageSize = 4096
	c.Imaging.PixelScale = "2arcmin"
	c.Imaging.Weighting = "briggs"
	c.Imaging.BriggsRobust = -0.5
	c.Imaging.CleanIterations = 1000
	c.Imaging.MGain = 0.9
	c.Imaging.AutoThreshold = 3
	c.Imaging.AutoMask = 8
	c.Imaging.MemPercentage = 2
	return c
}

// LoadConfig reads a YAML config, layering it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read selfcal config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse selfcal config %s: %w", path, err)
	}
	if cfg.SelfCal.Iterations < 1 {
		return cfg, fmt.Errorf("selfcal config %s: iterations must be >= 1", path)
	}
	return cfg, nil
}
