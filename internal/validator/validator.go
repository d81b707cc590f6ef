// Package validator invokes the external image-quality tool that scores a
// marker image's tracking suitability on a 0-100 scale. The tool is a black
// box: it is run as a subprocess with a bounded timeout and its score is
// parsed best-effort from free-form output.
package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// Fallback policies for when the tool fails, times out, or produces no
// parseable score. A silent pass is never an option.
const (
	// FallbackReject treats tool failure as a validation failure.
	FallbackReject = "reject"
	// FallbackUnverified substitutes a configured default score and marks
	// the result so the record can be flagged as unverified.
	FallbackUnverified = "unverified"
)

// ErrToolFailed reports that the validator tool could not produce a score:
// launch failure, timeout, or unparseable output.
var ErrToolFailed = errors.New("validator tool failed")

var scoreRe = regexp.MustCompile(`\b(\d{1,3})\b`)

// Result is the outcome of one evaluation. Unverified is set only when the
// fallback policy substituted the score.
type Result struct {
	Score      int
	Unverified bool
}

// Runner executes the tool against an image file and returns its combined
// output. Split out so tests can stub the subprocess.
type Runner interface {
	Run(ctx context.Context, imagePath string) ([]byte, error)
}

// CmdRunner runs a real subprocess with a bounded timeout.
type CmdRunner struct {
	Cmd     string
	Timeout time.Duration
}

func (r CmdRunner) Run(ctx context.Context, imagePath string) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, r.Cmd, "eval-img", "--input_image_path", imagePath).CombinedOutput()
	if ctx.Err() != nil {
		return out, fmt.Errorf("validator timed out after %s", timeout)
	}
	if err != nil {
		return out, fmt.Errorf("running validator: %w", err)
	}
	return out, nil
}

// Validator applies the configured fallback policy around a Runner.
type Validator struct {
	Runner       Runner
	Fallback     string
	DefaultScore int
}

// Evaluate writes the image to a temporary file, runs the tool against it,
// and returns the parsed score. On tool failure the configured fallback
// policy decides between an error and a flagged substitute score.
func (v *Validator) Evaluate(ctx context.Context, image []byte) (Result, error) {
	tmp, err := os.CreateTemp("", "marker-*.jpg")
	if err != nil {
		return v.fallback(fmt.Errorf("creating temp image: %w", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return v.fallback(fmt.Errorf("writing temp image: %w", err))
	}
	tmp.Close()

	out, err := v.Runner.Run(ctx, tmp.Name())
	if err != nil {
		return v.fallback(err)
	}

	score, ok := parseScore(out)
	if !ok {
		return v.fallback(fmt.Errorf("no score in output %q", truncate(out, 120)))
	}
	return Result{Score: score}, nil
}

func (v *Validator) fallback(cause error) (Result, error) {
	if v.Fallback == FallbackUnverified {
		return Result{Score: v.DefaultScore, Unverified: true}, nil
	}
	return Result{}, fmt.Errorf("%w: %v", ErrToolFailed, cause)
}

// parseScore extracts the last standalone 0-100 integer from the tool's
// output. The tool may print banners and version strings before the score,
// so the final match wins.
func parseScore(out []byte) (int, bool) {
	matches := scoreRe.FindAllSubmatch(out, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(string(matches[i][1]))
		if err == nil && n >= 0 && n <= 100 {
			return n, true
		}
	}
	return 0, false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
