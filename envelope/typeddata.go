package envelope

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// PrimaryType is the struct type a provenance envelope signs over.
const PrimaryType = "ContentProvenance"

// Domain scopes signatures so they cannot be replayed across applications.
type Domain struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           int64  `json:"chainId"`
	VerifyingContract string `json:"verifyingContract"`
}

// DefaultDomain is the signing domain for provenance envelopes.
func DefaultDomain() Domain {
	return Domain{
		Name:              "VeriText Provenance",
		Version:           "1",
		ChainID:           1,
		VerifyingContract: "0x0000000000000000000000000000000000000000",
	}
}

// TypeField is one member of a typed-data struct definition.
type TypeField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Types maps struct type names to their ordered field lists.
type Types map[string][]TypeField

// ProvenanceTypes returns the full type set for a provenance envelope,
// including the domain type.
func ProvenanceTypes() Types {
	return Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		PrimaryType: {
			{Name: "version", Type: "uint256"},
			{Name: "modelId", Type: "string"},
			{Name: "modelHash", Type: "string"},
			{Name: "promptHash", Type: "string"},
			{Name: "outputHash", Type: "string"},
			{Name: "paramsHash", Type: "string"},
			{Name: "contentCid", Type: "string"},
			{Name: "timestamp", Type: "uint256"},
			{Name: "attestationStrategy", Type: "string"},
			{Name: "keywordsHash", Type: "string"},
			{Name: "programHash", Type: "string"},
			{Name: "journalCid", Type: "string"},
			{Name: "proofCid", Type: "string"},
		},
	}
}

// PruneTypes returns a copy of types containing only primaryType, the types
// it references, and EIP712Domain.
func PruneTypes(types Types, primaryType string) Types {
	out := Types{}
	keep := func(name string) {
		if fields, ok := types[name]; ok {
			out[name] = append([]TypeField(nil), fields...)
		}
	}
	keep("EIP712Domain")
	keep(primaryType)
	for _, f := range types[primaryType] {
		if _, ok := types[f.Type]; ok {
			keep(f.Type)
		}
	}
	return out
}

// TypedDataDigest computes the 32-byte signing digest:
//
//	keccak256(0x19 || 0x01 || domainSeparator || structHash)
func TypedDataDigest(domain Domain, types Types, primaryType string, message map[string]any) ([32]byte, error) {
	var digest [32]byte

	sep, err := domainSeparator(domain, types)
	if err != nil {
		return digest, err
	}
	sh, err := structHash(types, primaryType, message)
	if err != nil {
		return digest, err
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{0x19, 0x01})
	h.Write(sep[:])
	h.Write(sh[:])
	h.Sum(digest[:0])
	return digest, nil
}

func domainSeparator(domain Domain, types Types) ([32]byte, error) {
	msg := map[string]any{
		"name":              domain.Name,
		"version":           domain.Version,
		"chainId":           domain.ChainID,
		"verifyingContract": domain.VerifyingContract,
	}
	return structHash(types, "EIP712Domain", msg)
}

func structHash(types Types, typeName string, message map[string]any) ([32]byte, error) {
	var out [32]byte
	fields, ok := types[typeName]
	if !ok {
		return out, newError(KindInternal, "PROV-712-001", fmt.Sprintf("unknown typed-data type %q", typeName))
	}

	h := sha3.NewLegacyKeccak256()
	th := typeHash(typeName, fields)
	h.Write(th[:])

	for _, f := range fields {
		v, ok := message[f.Name]
		if !ok {
			return out, newError(KindValidation, "PROV-712-002", fmt.Sprintf("typed-data message missing field %q", f.Name))
		}
		enc, err := encodeValue(f.Type, v)
		if err != nil {
			return out, wrapError(KindValidation, "PROV-712-003", fmt.Sprintf("encode field %q", f.Name), err)
		}
		h.Write(enc[:])
	}
	h.Sum(out[:0])
	return out, nil
}

func typeHash(typeName string, fields []TypeField) [32]byte {
	var sb strings.Builder
	sb.WriteString(typeName)
	sb.WriteByte('(')
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.Type)
		sb.WriteByte(' ')
		sb.WriteString(f.Name)
	}
	sb.WriteByte(')')
	return keccak([]byte(sb.String()))
}

func encodeValue(fieldType string, v any) ([32]byte, error) {
	var out [32]byte
	switch fieldType {
	case "string":
		s, ok := v.(string)
		if !ok {
			return out, fmt.Errorf("want string, got %T", v)
		}
		return keccak([]byte(s)), nil

	case "uint256":
		var u uint64
		switch n := v.(type) {
		case int:
			if n < 0 {
				return out, fmt.Errorf("negative uint256: %d", n)
			}
			u = uint64(n)
		case int64:
			if n < 0 {
				return out, fmt.Errorf("negative uint256: %d", n)
			}
			u = uint64(n)
		case uint64:
			u = n
		default:
			return out, fmt.Errorf("want integer, got %T", v)
		}
		binary.BigEndian.PutUint64(out[24:], u)
		return out, nil

	case "address":
		s, ok := v.(string)
		if !ok {
			return out, fmt.Errorf("want address string, got %T", v)
		}
		b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
		if err != nil || len(b) != 20 {
			return out, fmt.Errorf("malformed address %q", s)
		}
		copy(out[12:], b)
		return out, nil

	default:
		return out, fmt.Errorf("unsupported typed-data field type %q", fieldType)
	}
}

func keccak(b []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	h.Sum(out[:0])
	return out
}
