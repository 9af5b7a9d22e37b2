package strategy

import "strconv"

func floatParam(parameters map[string]string, key string, def float64) float64 {
	if raw, ok := parameters[key]; ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return def
}

func intParam(parameters map[string]string, key string, def int) int {
	if raw, ok := parameters[key]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}
