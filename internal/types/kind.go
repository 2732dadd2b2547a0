package types

import (
	"strings"
)

// Model identifies the workload the topology was written for.
type Model string

const (
	ModelQwen     Model = "qwen"
	ModelDeepSeek Model = "deepseek"
)

// ParseModel matches a header model token case-insensitively.
func ParseModel(s string) (Model, bool) {
	switch Model(strings.ToLower(s)) {
	case ModelQwen:
		return ModelQwen, true
	case ModelDeepSeek:
		return ModelDeepSeek, true
	}
	return "", false
}

// Kind is the parallelism group kind of a communication node.
type Kind string

const (
	KindTP Kind = "TP"
	KindPP Kind = "PP"
	KindDP Kind = "DP"
	KindEP Kind = "EP"
)

// AllKinds lists the kinds in grammar order.
var AllKinds = []Kind{KindTP, KindEP, KindPP, KindDP}

// ParseKind matches a grammar mode token. Matching is case-sensitive.
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Mode is the traffic pattern a node is synthesized with.
type Mode string

const (
	ModeTP Mode = "tp"
	ModePP Mode = "pp"
	ModeDP Mode = "dp"
	ModeEP Mode = "ep"
)

// Mode maps a kind to its traffic mode. DeepSeek expert parallelism runs
// as a tensor-parallel ring instead of all-to-all.
func (k Kind) Mode(model Model) Mode {
	switch k {
	case KindTP:
		return ModeTP
	case KindPP:
		return ModePP
	case KindDP:
		return ModeDP
	case KindEP:
		if model == ModelDeepSeek {
			return ModeTP
		}
		return ModeEP
	}
	return ""
}
