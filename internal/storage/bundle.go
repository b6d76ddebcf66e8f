package storage

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"heist/internal/model"
)

// BundleExt is the file extension used for agent bundles.
const BundleExt = ".heist"

const bundleMagic = "heist-agent"

var ErrBadBundle = errors.New("malformed agent bundle")

// BundleHeader is the JSON line at the top of a bundle. It can be read
// without decoding the table.
type BundleHeader struct {
	Magic         string            `json:"magic"`
	SchemaVersion int               `json:"schema_version"`
	CodecVersion  int               `json:"codec_version"`
	ID            string            `json:"id"`
	Role          string            `json:"role"`
	States        int               `json:"states"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type bundleBody struct {
	Alpha   float64
	Gamma   float64
	Epsilon float64
	Actions int
	Table   map[string][]float64
}

// BundlePath returns the conventional bundle location for role under dir.
func BundlePath(dir, role string) string {
	return filepath.Join(dir, role+"_agent"+BundleExt)
}

// WriteBundle stores a full agent (hyperparameters, table and metadata) as a
// zstd stream holding a JSON header line followed by a gob body.
func WriteBundle(path string, agent model.AgentRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	header := BundleHeader{
		Magic:         bundleMagic,
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
		ID:            agent.ID,
		Role:          agent.Role,
		States:        len(agent.Table),
		Metadata:      agent.Metadata,
	}
	body := bundleBody{
		Alpha:   agent.Alpha,
		Gamma:   agent.Gamma,
		Epsilon: agent.Epsilon,
		Actions: agent.Actions,
		Table:   agent.Table,
	}
	return writeCompressed(path, header, body)
}

// ReadBundle loads the bundle at path and verifies it holds an agent for role.
func ReadBundle(path, role string) (model.AgentRecord, error) {
	header, body, err := readCompressed(path)
	if err != nil {
		return model.AgentRecord{}, err
	}
	agent := model.AgentRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: header.SchemaVersion, CodecVersion: header.CodecVersion},
		ID:              header.ID,
		Role:            header.Role,
		Alpha:           body.Alpha,
		Gamma:           body.Gamma,
		Epsilon:         body.Epsilon,
		Actions:         body.Actions,
		Table:           body.Table,
		Metadata:        header.Metadata,
	}
	if agent.Table == nil {
		agent.Table = map[string][]float64{}
	}
	if err := CheckRole(agent, role); err != nil {
		return model.AgentRecord{}, err
	}
	return agent, nil
}

// ReadBundleHeader decodes only the header line.
func ReadBundleHeader(path string) (BundleHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return BundleHeader{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return BundleHeader{}, err
	}
	defer dec.Close()

	return readHeader(bufio.NewReader(dec))
}

// SaveTable writes only the value table. Hyperparameters are left zero and
// must be supplied again by whoever loads it.
func SaveTable(path, role string, table map[string][]float64, actions int) error {
	return WriteBundle(path, model.AgentRecord{Role: role, Actions: actions, Table: table})
}

func LoadTable(path, role string) (map[string][]float64, error) {
	agent, err := ReadBundle(path, role)
	if err != nil {
		return nil, err
	}
	return agent.Table, nil
}

func writeCompressed(path string, header BundleHeader, body bundleBody) error {
	hb, err := json.Marshal(header)
	if err != nil {
		return err
	}
	var gb bytes.Buffer
	if err := gob.NewEncoder(&gb).Encode(&body); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	bw := bufio.NewWriter(enc)
	_, err = bw.Write(append(hb, '\n'))
	if err == nil {
		_, err = bw.Write(gb.Bytes())
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readCompressed(path string) (BundleHeader, bundleBody, error) {
	f, err := os.Open(path)
	if err != nil {
		return BundleHeader{}, bundleBody{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return BundleHeader{}, bundleBody{}, err
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	header, err := readHeader(br)
	if err != nil {
		return BundleHeader{}, bundleBody{}, err
	}
	var body bundleBody
	if err := gob.NewDecoder(br).Decode(&body); err != nil {
		return BundleHeader{}, bundleBody{}, fmt.Errorf("%w: gob decode: %v", ErrBadBundle, err)
	}
	return header, body, nil
}

func readHeader(br *bufio.Reader) (BundleHeader, error) {
	line, err := br.ReadBytes('\n')
	if err != nil {
		return BundleHeader{}, fmt.Errorf("%w: read header: %v", ErrBadBundle, err)
	}
	var header BundleHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return BundleHeader{}, fmt.Errorf("%w: decode header: %v", ErrBadBundle, err)
	}
	if header.Magic != bundleMagic {
		return BundleHeader{}, fmt.Errorf("%w: magic %q", ErrBadBundle, header.Magic)
	}
	if err := checkVersion(model.VersionedRecord{SchemaVersion: header.SchemaVersion, CodecVersion: header.CodecVersion}); err != nil {
		return BundleHeader{}, err
	}
	return header, nil
}
