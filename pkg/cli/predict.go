package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mchmarny/vcpulse/pkg/engine"
	"github.com/mchmarny/vcpulse/pkg/schema"
	"github.com/urfave/cli/v2"
)

var (
	recordFileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Path to the record JSON file (use - for stdin)",
		Value:   "-",
	}

	predictCmd = &cli.Command{
		Name:    "predict",
		Aliases: []string{"p"},
		Usage:   "Score a single startup record through the full model ensemble",
		Flags: []cli.Flag{
			recordFileFlag,
		},
		Action: cmdPredict,
	}
)

func cmdPredict(c *cli.Context) error {
	rec, err := readRecord(c.String(recordFileFlag.Name))
	if err != nil {
		return err
	}

	res, err := getConfig(c).Engine.Predict(c.Context, rec)
	if err != nil {
		return describePredictError(err)
	}

	return encode(res)
}

func readRecord(path string) (map[string]any, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening record file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var rec map[string]any
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

// describePredictError keeps the taxonomy visible in CLI output instead
// of collapsing everything into one generic failure line. Per-model
// contract violations never surface here; the engine recovers them into
// the degraded list.
func describePredictError(err error) error {
	var sv *schema.SchemaViolation
	if errors.As(err, &sv) {
		return fmt.Errorf("record rejected: %w", err)
	}
	var pu *engine.PredictionUnavailable
	if errors.As(err, &pu) {
		return fmt.Errorf("no usable prediction: %w", err)
	}
	return err
}
