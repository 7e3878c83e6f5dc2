// Package parset renders DP3 parameter-set files and manages their
// lifetime on disk. Parsets are transient: written immediately before a
// DP3 invocation and removed as soon as it returns, success or failure.
package parset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Doc is an ordered list of parset lines. DP3 reads key = value pairs;
// order is kept so rendered parsets stay diffable against hand-written ones.
type Doc struct {
	lines []string
}

// Set appends one key = value line.
func (d *Doc) Set(key string, value any) {
	d.lines = append(d.lines, fmt.Sprintf("%s = %v", key, value))
}

// Steps appends the steps = [a, b] line.
func (d *Doc) Steps(names ...string) {
	d.lines = append(d.lines, fmt.Sprintf("steps = [%s]", strings.Join(names, ", ")))
}

// Blank appends an empty separator line.
func (d *Doc) Blank() {
	d.lines = append(d.lines, "")
}

// String renders the parset with a trailing newline.
func (d *Doc) String() string {
	return strings.Join(d.lines, "\n") + "\n"
}

// FlagAvg renders the aoflagger + frequency-averaging parset.
// inPath/outPath are container-side MS paths.
func FlagAvg(inPath, outPath, strategy string, freqStep int) string {
	var d Doc
	d.Set("msin", inPath)
	d.Set("msout", outPath)
	d.Blank()
	d.Steps("flag", "avg")
	d.Blank()
	d.Set("flag.type", "aoflagger")
	d.Set("flag.strategy", strategy)
	d.Set("flag.keepstatistics", false)
	d.Blank()
	d.Set("avg.type", "averager")
	d.Set("avg.freqstep", freqStep)
	return d.String()
}

// GainCalParams are the tunable knobs of the gaincal step. Zero values
// mean DP3 defaults except where the original pipeline pins a value.
type GainCalParams struct {
	SolInt    int     // solution interval in timesteps; 0 = per scan
	CalType   string  // gain, diagonal, phase, bandpass
	UVLambda  float64 // minimum uv distance in lambda
	MaxIter   int
	Tolerance float64
}

// GainCal renders the gain-calibration parset. The solved table lands in
// parmdb; the calibrated data stream out to outPath.
func GainCal(inPath, outPath, parmdb string, p GainCalParams) string {
	var d Doc
	d.Set("msin", inPath)
	d.Steps("gaincal")
	d.Blank()
	d.Set("msout", outPath)
	d.Blank()
	d.Set("gaincal.solint", p.SolInt)
	d.Set("gaincal.caltype", p.CalType)
	d.Set("gaincal.uvlambdamin", p.UVLambda)
	d.Set("gaincal.maxiter", p.MaxIter)
	d.Set("gaincal.tolerance", p.Tolerance)
	d.Set("gaincal.usemodelcolumn", true)
	d.Set("gaincal.modelcolumn", "MODEL_DATA")
	d.Set("gaincal.parmdb", parmdb)
	return d.String()
}

// ApplyCal renders the solution-application parset.
func ApplyCal(inPath, outPath, parmdb, correction string) string {
	var d Doc
	d.Set("msin", inPath)
	d.Set("msout", outPath)
	d.Steps("applycal")
	d.Set("applycal.type", "applycal")
	d.Set("applycal.parmdb", parmdb)
	d.Set("applycal.correction", correction)
	return d.String()
}

// SelfCalParams feed the per-iteration calibration parset of the
// self-calibration loop.
type SelfCalParams struct {
	NTime                int
	WriteFullResFlag     bool
	SolInt               int
	CalType              string
	ApplySmooth          bool
	SmoothnessConstraint float64
	SolverType           string
	MaxIter              int
	Tolerance            float64
	ModelColumn          string
}

// SelfCalIteration renders the calibration parset for one self-cal loop
// iteration.
func SelfCalIteration(inPath, outPath string, p SelfCalParams) string {
	var d Doc
	d.Set("msin.type", "ms")
	d.Set("msin.name", inPath)
	d.Set("msin.ntime", p.NTime)
	d.Blank()
	d.Set("msout.type", "ms")
	d.Set("msout.name", outPath)
	d.Set("msout.writefullresflag", p.WriteFullResFlag)
	d.Blank()
	d.Steps("cal")
	d.Blank()
	d.Set("cal.type", "gaincal")
	d.Set("cal.solint", p.SolInt)
	d.Set("cal.caltype", p.CalType)
	d.Set("cal.applysmooth", p.ApplySmooth)
	d.Set("cal.smoothnessconstraint", p.SmoothnessConstraint)
	d.Set("cal.soltype", p.SolverType)
	d.Set("cal.maxiter", p.MaxIter)
	d.Set("cal.tolerance", p.Tolerance)
	d.Set("cal.usemodelcolumn", true)
	d.Set("cal.modelcolumn", p.ModelColumn)
	return d.String()
}

// WriteTemp writes content to dir/name and returns the path plus a cleanup
// function. Cleanup is safe to call on every exit path; the file is gone
// afterwards whether the invocation that used it succeeded or not.
func WriteTemp(dir, name, content string) (string, func(), error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", nil, fmt.Errorf("write parset %s: %w", name, err)
	}
	return path, func() { _ = os.Remove(path) }, nil
}
