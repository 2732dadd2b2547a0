package topology

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/expr"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Header is the first grammar line: "<model> <deviceCount> <iterationCount>".
type Header struct {
	Model          types.Model `json:"model" yaml:"model"`
	DeviceCount    int         `json:"devices" yaml:"devices"`
	IterationCount int         `json:"iterations" yaml:"iterations"`
}

// ParseHeader parses the header line.
func ParseHeader(line string) (Header, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Header{}, errors.NewHeaderError("ParseHeader",
			fmt.Sprintf("first line must specify model, devices and iterations, got %q", strings.TrimSpace(line)), nil)
	}

	model, ok := types.ParseModel(fields[0])
	if !ok {
		return Header{}, errors.NewHeaderError("ParseHeader",
			fmt.Sprintf("model must be 'Qwen' or 'DeepSeek', got %q", fields[0]), nil)
	}

	devices, err := strconv.Atoi(fields[1])
	if err != nil || devices <= 0 {
		return Header{}, errors.NewHeaderError("ParseHeader",
			fmt.Sprintf("devices must be a positive integer, got %q", fields[1]), err)
	}

	iterations, err := strconv.Atoi(fields[2])
	if err != nil || iterations <= 0 {
		return Header{}, errors.NewHeaderError("ParseHeader",
			fmt.Sprintf("iterations must be a positive integer, got %q", fields[2]), err)
	}

	return Header{Model: model, DeviceCount: devices, IterationCount: iterations}, nil
}

// ReadHeader parses the header of a whole grammar file.
func ReadHeader(grammar []byte) (Header, error) {
	lines, err := splitLines(grammar)
	if err != nil {
		return Header{}, err
	}
	return ParseHeader(lines[0])
}

// splitLines returns the grammar lines, failing on empty input.
func splitLines(grammar []byte) ([]string, error) {
	if len(bytes.TrimSpace(grammar)) == 0 {
		return nil, errors.NewHeaderError("splitLines", "input file is empty", nil)
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(grammar))
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewHeaderError("splitLines", "error reading grammar", err)
	}
	return lines, nil
}

// lineSpec is one parsed body line before parent resolution.
type lineSpec struct {
	num     int
	layer   int
	kind    types.Kind
	parents []string
	args    types.CommArgs
}

// parseLine parses "<layer> <MODE> <parents> [--key value]*". deviceCount
// bounds the device key.
func parseLine(line string, num, deviceCount int) (*lineSpec, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, errors.NewParseError("parseLine", num,
			"invalid format, expected at least layer, mode and parent", nil)
	}

	layer, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, errors.NewParseError("parseLine", num,
			fmt.Sprintf("layer must be an integer, got %q", fields[0]), nil)
	}

	kind, ok := types.ParseKind(fields[1])
	if !ok {
		return nil, errors.NewParseError("parseLine", num,
			fmt.Sprintf("invalid mode %s, must be one of TP, EP, PP, DP", fields[1]), nil)
	}

	parents := strings.Split(fields[2], "/")
	for _, p := range parents {
		if p == "" {
			return nil, errors.NewParseError("parseLine", num,
				fmt.Sprintf("empty parent reference in %q", fields[2]), nil)
		}
	}

	args, err := parseArgs(fields[3:], num, deviceCount)
	if err != nil {
		return nil, err
	}

	return &lineSpec{
		num:     num,
		layer:   layer,
		kind:    kind,
		parents: parents,
		args:    args,
	}, nil
}

// parseArgs applies "--key value" overrides on top of the defaults.
func parseArgs(tokens []string, num, deviceCount int) (types.CommArgs, error) {
	args := types.DefaultCommArgs()

	for i := 0; i < len(tokens); i += 2 {
		flag := tokens[i]
		if !strings.HasPrefix(flag, "--") {
			return args, errors.NewParseError("parseArgs", num,
				fmt.Sprintf("expected --key, got %q", flag), nil)
		}
		if i+1 >= len(tokens) {
			return args, errors.NewParseError("parseArgs", num,
				fmt.Sprintf("missing value for %s", flag), nil)
		}
		if err := setArg(&args, normalizeKey(flag), tokens[i+1], num, deviceCount); err != nil {
			return args, err
		}
	}

	if err := args.Validate(deviceCount); err != nil {
		return args, errors.NewRangeError("parseArgs", num, err.Error(), nil)
	}
	return args, nil
}

func normalizeKey(flag string) string {
	return strings.ReplaceAll(strings.TrimPrefix(flag, "--"), "-", "_")
}

func setArg(args *types.CommArgs, key, value string, num, deviceCount int) error {
	var target *int
	switch key {
	case "host_num":
		target = &args.HostCount
	case "num_nodes":
		target = &args.GroupNodeCount
	case "dp":
		target = &args.Parallelism
	case "num_phases":
		target = &args.PhaseCount
	case "num_iterations":
		target = &args.IterationCount
	case "device":
		target = &args.Device
	case "forward":
		target = &args.Forward
	case "msg_len":
		v, err := expr.Eval(value)
		if err != nil {
			return errors.NewParseError("setArg", num,
				fmt.Sprintf("invalid value for --%s: %q", key, value), err)
		}
		args.MessageLength = v
		return nil
	default:
		return errors.NewParseError("setArg", num, fmt.Sprintf("unknown argument --%s", key), nil)
	}

	v, err := strconv.Atoi(value)
	if err != nil {
		return errors.NewParseError("setArg", num,
			fmt.Sprintf("invalid value for --%s: %q", key, value), nil)
	}
	*target = v

	switch key {
	case "device":
		if err := args.ValidateDevice(deviceCount); err != nil {
			return errors.NewRangeError("setArg", num, err.Error(), nil)
		}
	case "forward":
		if err := args.ValidateForward(); err != nil {
			return errors.NewRangeError("setArg", num, err.Error(), nil)
		}
	}
	return nil
}

// isBodyLine reports whether a line carries a node declaration.
func isBodyLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && !strings.HasPrefix(trimmed, "#")
}
