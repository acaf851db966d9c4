package credentials

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"filippo.io/age"
	"filippo.io/age/armor"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
	"github.com/doeshing/shai-bridge/internal/ports"
)

// PassphraseEnv names the variable consulted before prompting.
const PassphraseEnv = "SHAI_BRIDGE_PASSPHRASE"

// PassphraseFunc supplies the key-file passphrase.
type PassphraseFunc func() (string, error)

// DefaultKeyFile is ~/.shai-bridge/keys.age.
func DefaultKeyFile() string {
	return filesystem.AppPath("keys.age")
}

// AgeStore keeps a YAML map of name to key inside an armored, passphrase
// encrypted age file. The file is decrypted lazily on first use.
type AgeStore struct {
	path       string
	passphrase PassphraseFunc
	workFactor int

	mu     sync.Mutex
	keys   map[string]string
	loaded bool
}

// NewAgeStore creates a store at path ("" means DefaultKeyFile).
// A nil passphrase func uses EnvOrPrompt.
func NewAgeStore(path string, passphrase PassphraseFunc) *AgeStore {
	if passphrase == nil {
		passphrase = EnvOrPrompt(os.Stdin, os.Stderr)
	}
	return &AgeStore{
		path:       filesystem.ExpandPath(path, DefaultKeyFile()),
		passphrase: passphrase,
	}
}

// Path returns the key file location.
func (s *AgeStore) Path() string {
	return s.path
}

// APIKey returns the stored key for name.
func (s *AgeStore) APIKey(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return "", err
	}
	key, ok := s.keys[name]
	if !ok {
		return "", fmt.Errorf("%w: %s not in %s", ErrNotFound, name, s.path)
	}
	return key, nil
}

// Names lists stored key names.
func (s *AgeStore) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.keys))
	for name := range s.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Set stores (or with an empty value, deletes) a key and re-encrypts the file.
func (s *AgeStore) Set(name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("key name is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if value == "" {
		delete(s.keys, name)
	} else {
		s.keys[name] = value
	}
	return s.saveLocked()
}

func (s *AgeStore) loadLocked() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.keys = map[string]string{}
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}

	passphrase, err := s.passphrase()
	if err != nil {
		return fmt.Errorf("key file passphrase: %w", err)
	}
	plain, err := decrypt(data, passphrase)
	if err != nil {
		return err
	}
	keys := map[string]string{}
	if err := yaml.Unmarshal(plain, &keys); err != nil {
		return fmt.Errorf("parse key file: %w", err)
	}
	s.keys = keys
	s.loaded = true
	return nil
}

func (s *AgeStore) saveLocked() error {
	plain, err := yaml.Marshal(s.keys)
	if err != nil {
		return err
	}
	passphrase, err := s.passphrase()
	if err != nil {
		return fmt.Errorf("key file passphrase: %w", err)
	}
	encrypted, err := encrypt(plain, passphrase, s.workFactor)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, encrypted, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func encrypt(data []byte, passphrase string, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}

	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)
	writer, err := age.Encrypt(armorWriter, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.Bytes(), nil
}

func decrypt(data []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(data)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt key file: %w", err)
	}
	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return plain, nil
}

// EnvOrPrompt reads the passphrase from $SHAI_BRIDGE_PASSPHRASE, falling back
// to a no-echo prompt when in is a terminal. The answer is cached.
func EnvOrPrompt(in *os.File, prompt io.Writer) PassphraseFunc {
	var (
		once   sync.Once
		cached string
		err    error
	)
	return func() (string, error) {
		once.Do(func() {
			if value := os.Getenv(PassphraseEnv); value != "" {
				cached = value
				return
			}
			fd := int(in.Fd())
			if !term.IsTerminal(fd) {
				err = fmt.Errorf("set %s or run interactively", PassphraseEnv)
				return
			}
			fmt.Fprint(prompt, "Key file passphrase: ")
			raw, readErr := term.ReadPassword(fd)
			fmt.Fprintln(prompt)
			if readErr != nil {
				err = readErr
				return
			}
			cached = strings.TrimSpace(string(raw))
			if cached == "" {
				err = fmt.Errorf("empty passphrase")
			}
		})
		return cached, err
	}
}

var _ ports.CredentialStore = (*AgeStore)(nil)
