package fetcher

import (
	"encoding/json"

	"sdexalgo/internal/model"
)

// encodeCandleMap / decodeCandleMap (de)serialize the fetcher's
// in-progress candle map as a JSON blob for the `state` table's
// UNPROCESSED_CANDLES key.
func encodeCandleMap(m map[string]model.Candle) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCandleMap(raw string) (map[string]model.Candle, error) {
	var m map[string]model.Candle
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
