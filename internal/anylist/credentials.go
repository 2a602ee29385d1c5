package anylist

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// credentials is the on-disk token cache (credentials.json in the state
// directory). It lets restarts skip the password login.
type credentials struct {
	ClientID           string  `json:"clientId"`
	AccessToken        string  `json:"accessToken"`
	RefreshToken       string  `json:"refreshToken"`
	LastUpdated        float64 `json:"lastUpdated"`
	LastUpdatedMethod  string  `json:"lastUpdatedMethod"`
}

func loadCredentials(path string) (*credentials, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading credential cache: %w", err)
	}
	var creds credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parsing credential cache: %w", err)
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		return nil, nil
	}
	return &creds, nil
}

func saveCredentials(path string, creds credentials, method string) error {
	creds.LastUpdated = float64(time.Now().UnixNano()) / float64(time.Second)
	creds.LastUpdatedMethod = method
	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshaling credential cache: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("writing credential cache: %w", err)
	}
	return nil
}
