package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"heist/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var (
	ErrVersionMismatch = errors.New("record version mismatch")
	ErrRoleMismatch    = errors.New("agent role mismatch")
)

// Versioned returns the version stamp for records written by this build.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeAgent(a model.AgentRecord) ([]byte, error) {
	return json.Marshal(a)
}

func DecodeAgent(data []byte) (model.AgentRecord, error) {
	var agent model.AgentRecord
	if err := json.Unmarshal(data, &agent); err != nil {
		return model.AgentRecord{}, err
	}
	if err := checkVersion(agent.VersionedRecord); err != nil {
		return model.AgentRecord{}, err
	}
	return agent, nil
}

// DecodeAgentAs decodes an agent record and rejects it unless it was saved
// for role.
func DecodeAgentAs(data []byte, role string) (model.AgentRecord, error) {
	agent, err := DecodeAgent(data)
	if err != nil {
		return model.AgentRecord{}, err
	}
	if err := CheckRole(agent, role); err != nil {
		return model.AgentRecord{}, err
	}
	return agent, nil
}

func CheckRole(agent model.AgentRecord, role string) error {
	if agent.Role != role {
		return fmt.Errorf("%w: agent %s is a %s, want %s", ErrRoleMismatch, agent.ID, agent.Role, role)
	}
	return nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeEpisodes(records []model.EpisodeRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeEpisodes(data []byte) ([]model.EpisodeRecord, error) {
	var records []model.EpisodeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
