package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// Credentials are the source secrets, keyed by the names the sources expect (TENANT_ID,
// COSMOS_DB_KEY, server, ...). Keys missing from the credentials file are looked up in
// the environment.
type Credentials struct {
	file   string
	values map[string]string
}

// LoadCredentials reads a flat JSON object (.json) or KEY=value file. A missing file yields
// empty credentials so that everything can come from the environment.
func LoadCredentials(path string) (*Credentials, error) {
	c := Credentials{
		file:   path,
		values: map[string]string{},
	}

	if path == "" {
		return &c, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &c, nil
	} else if err != nil {
		return nil, domain.ErrConfiguration("unable to read credentials file '%s' (%w)", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		values, err := parseJSON(b)
		if err != nil {
			return nil, domain.ErrConfiguration("invalid credentials file '%s' (%w)", path, err)
		}

		c.values = values
	} else {
		values, err := godotenv.Parse(bytes.NewReader(b))
		if err != nil {
			return nil, domain.ErrConfiguration("invalid credentials file '%s' (%w)", path, err)
		}

		c.values = values
	}

	return &c, nil
}

// NewCredentials creates credentials from a map, with the environment as fallback.
func NewCredentials(values map[string]string) *Credentials {
	c := Credentials{
		values: map[string]string{},
	}

	for k, v := range values {
		c.values[k] = v
	}

	return &c
}

// Get returns the credential for key, from the credentials file or else the environment.
func (c *Credentials) Get(key string) string {
	if c != nil {
		if v, ok := c.values[key]; ok && v != "" {
			return v
		}
	}

	return os.Getenv(key)
}

// Require checks that every key has a non-blank value, listing all the missing keys.
func (c *Credentials) Require(source string, keys ...string) error {
	missing := []string{}
	for _, k := range keys {
		if strings.TrimSpace(c.Get(k)) == "" {
			missing = append(missing, k)
		}
	}

	if len(missing) > 0 {
		from := "environment"
		if c != nil && c.file != "" {
			from = fmt.Sprintf("'%s' or environment", c.file)
		}

		return domain.ErrConfiguration("%s: missing credentials %s (%s)", source, strings.Join(missing, ", "), from)
	}

	return nil
}

// Keys returns the credential names loaded from the file, sorted.
func (c *Credentials) Keys() []string {
	keys := []string{}
	if c != nil {
		for k := range c.values {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	return keys
}

func parseJSON(b []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	object := map[string]any{}
	if err := dec.Decode(&object); err != nil {
		return nil, err
	}

	values := map[string]string{}
	for k, v := range object {
		switch x := v.(type) {
		case nil:
		case string:
			values[k] = x
		case json.Number:
			values[k] = x.String()
		case bool:
			values[k] = fmt.Sprintf("%v", x)
		default:
			return nil, fmt.Errorf("credential '%s' is not a scalar value", k)
		}
	}

	return values, nil
}
