package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"github.com/compose-network/soulbound-harness/internal/infra/filesystem"
	fsjson "github.com/compose-network/soulbound-harness/internal/infra/filesystem/json"
	"github.com/compose-network/soulbound-harness/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var ErrNoRecord = errors.New("no deployment record")

var addressModule = template.Must(template.New("address").Parse(`export const {{.Name}} = "{{.Address}}"`))

// WriteAddressModule writes the single-line JS module the frontend imports the proxy address
// from. The file has no trailing newline.
func WriteAddressModule(path, exportName string, address common.Address) error {
	var buf bytes.Buffer
	if err := addressModule.Execute(&buf, struct {
		Name    string
		Address string
	}{exportName, address.Hex()}); err != nil {
		return fmt.Errorf("could not render %s. Err: '%w'", path, err)
	}

	if err := fsjson.NewWriter().WriteBytes(path, buf.Bytes()); err != nil {
		return fmt.Errorf("could not write %s. Err: '%w'", path, err)
	}

	return nil
}

// Store keeps one current record per network under dir.
type Store struct {
	dir    string
	writer filesystem.Writer
	logger *slog.Logger
}

func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		writer: fsjson.NewWriter(),
		logger: logger.Named("deployment_store"),
	}
}

func (s *Store) path(network string) string {
	return filepath.Join(s.dir, network+".yaml")
}

// Save writes record as the current one for its network. An existing record is never
// overwritten: it is first renamed to <network>.<deployed-unix>.yaml.
func (s *Store) Save(record Record) (string, error) {
	path := s.path(record.Network)

	previous, err := s.Load(record.Network)
	switch {
	case err == nil:
		archived := filepath.Join(s.dir, record.Network+"."+strconv.FormatInt(previous.DeployedAt.Unix(), 10)+".yaml")
		if err := os.Rename(path, archived); err != nil {
			return "", fmt.Errorf("could not archive previous record. Err: '%w'", err)
		}
		s.logger.With("archived", archived).Info("previous deployment record archived")
	case !errors.Is(err, ErrNoRecord):
		return "", err
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("could not marshal deployment record. Err: '%w'", err)
	}

	if err := s.writer.WriteBytes(path, data); err != nil {
		return "", fmt.Errorf("could not write deployment record. Err: '%w'", err)
	}

	s.logger.With("path", path).With("proxy", record.Proxy.Hex()).Info("deployment record saved")

	return path, nil
}

// Load reads the current record of network.
func (s *Store) Load(network string) (Record, error) {
	data, err := os.ReadFile(s.path(network))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Record{}, fmt.Errorf("%w for network %s in %s", ErrNoRecord, network, s.dir)
		}
		return Record{}, fmt.Errorf("could not read deployment record. Err: '%w'", err)
	}

	var record Record
	if err := yaml.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("could not decode deployment record. Err: '%w'", err)
	}

	return record, nil
}

// CompactJSON strips whitespace from a JSON document, returning it unchanged when it does not parse.
func CompactJSON(jsonStr string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(jsonStr)); err != nil {
		return jsonStr
	}
	return buf.String()
}
