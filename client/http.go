package client

import (
	"encoding/json"
	"fmt"
)

func decodeJSON(body []byte, path string, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
