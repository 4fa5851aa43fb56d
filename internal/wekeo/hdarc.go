package wekeo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HDARCName is the credentials file kept in the user's home directory.
const HDARCName = ".hdarc"

// ErrNoCredentials is returned when no credentials file exists.
var ErrNoCredentials = errors.New("no HDA credentials file")

// DefaultHDARCPath returns ~/.hdarc.
func DefaultHDARCPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, HDARCName), nil
}

// ReadHDARC reads "user: <u>" and "password: <p>" entries. Values are
// taken verbatim after the first colon, so passwords may contain '#' or
// quotes. Other keys, such as the url entry written by older clients, are
// ignored.
func ReadHDARC(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w: %s", ErrNoCredentials, path)
		}
		return Credentials{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var creds Credentials
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "user":
			creds.User = strings.TrimSpace(value)
		case "password":
			creds.Password = strings.TrimSpace(value)
		}
	}
	if err := sc.Err(); err != nil {
		return Credentials{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if creds.User == "" || creds.Password == "" {
		return Credentials{}, fmt.Errorf("%s: user and password entries are required", path)
	}
	return creds, nil
}

// WriteHDARC writes the credentials file, readable by the owner only.
func WriteHDARC(path string, creds Credentials) error {
	if creds.User == "" || creds.Password == "" {
		return fmt.Errorf("user and password are required")
	}
	content := fmt.Sprintf("user: %s\npassword: %s\n", creds.User, creds.Password)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

// RemoveHDARC deletes the credentials file. A missing file is not an error.
func RemoveHDARC(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// CleanHDARC drops legacy "url:" lines from the credentials file and
// reports whether the file changed.
func CleanHDARC(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", ErrNoCredentials, path)
		}
		return false, err
	}

	var (
		out     bytes.Buffer
		changed bool
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "url:") {
			changed = true
			continue
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	return true, os.WriteFile(path, out.Bytes(), 0o600)
}
