package configuration

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ruteri/bkps-admin/cryptoutils"
	"github.com/ruteri/bkps-admin/interfaces"
)

// ImportKeySource fetches the service's current import public key. It is
// asked at most once per assembly and never cached across submissions.
type ImportKeySource interface {
	FetchImportPublicKey(ctx context.Context) ([]byte, error)
}

// Submission is the canonical create/update configuration body. Field order
// is the serialized key order.
type Submission struct {
	Name              string             `json:"name"`
	PufType           interfaces.PufType `json:"pufType"`
	RequireIidUds     bool               `json:"requireIidUds"`
	TestModeSecrets   bool               `json:"testModeSecrets"`
	CorimURL          string             `json:"corimUrl"`
	Overbuild         Overbuild          `json:"overbuild"`
	ConfidentialData  ConfidentialData   `json:"confidentialData"`
	AttestationConfig AttestationConfig  `json:"attestationConfig"`
}

type Overbuild struct {
	Max int `json:"max"`
}

type ConfidentialData struct {
	ImportMode      interfaces.ImportMode `json:"importMode"`
	AesKey          AesKey                `json:"aesKey"`
	EncryptedAesKey *Envelope             `json:"encryptedAesKey,omitempty"`
	Qek             *Qek                  `json:"qek,omitempty"`
	EncryptedQek    *Envelope             `json:"encryptedQek,omitempty"`
}

// AesKey carries the plaintext AES key value in PLAINTEXT mode only.
type AesKey struct {
	Value       string `json:"value,omitempty"`
	TestProgram bool   `json:"testProgram"`
}

// Qek carries the plaintext QEK value in PLAINTEXT mode only.
type Qek struct {
	Value   string `json:"value,omitempty"`
	KeyName string `json:"keyName"`
}

// Envelope is one hybrid-encrypted field. WrappedKey is shared by every
// envelope of a submission.
type Envelope struct {
	Value      string `json:"value"`
	WrappedKey string `json:"wrappedKey"`
}

type AttestationConfig struct {
	EfusesPublic EfusesPublic `json:"efusesPublic"`
	BlackList    BlackList    `json:"blackList"`
}

type EfusesPublic struct {
	Value string `json:"value"`
	Mask  string `json:"mask"`
}

type BlackList struct {
	RomVersions       []int    `json:"romVersions"`
	SdmBuildIDStrings []string `json:"sdmBuildIdStrings"`
	SdmSvns           []int    `json:"sdmSvns"`
}

type AssemblerOpts struct {
	Debug bool
	Log   *slog.Logger
}

// Assembler turns a verified Document into the submission body, encrypting
// confidential data when the document asks for ENCRYPTED import.
type Assembler struct {
	keySource ImportKeySource
	debug     bool
	log       *slog.Logger
}

func NewAssembler(keySource ImportKeySource, opts AssemblerOpts) *Assembler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		keySource: keySource,
		debug:     opts.Debug,
		log:       log,
	}
}

// Assemble builds and serializes the submission for doc.
func (a *Assembler) Assemble(ctx context.Context, doc *Document) ([]byte, error) {
	sub := Submission{
		Name:            doc.name,
		PufType:         doc.pufType,
		RequireIidUds:   doc.requireIidUds,
		TestModeSecrets: doc.testModeSecrets,
		CorimURL:        doc.corimURL,
		Overbuild:       Overbuild{Max: doc.overbuildMax},
		ConfidentialData: ConfidentialData{
			ImportMode: doc.importMode,
			AesKey:     AesKey{TestProgram: doc.testProgram},
		},
		AttestationConfig: AttestationConfig{
			EfusesPublic: EfusesPublic{
				Value: doc.efusesPublicValue,
				Mask:  doc.efusesPublicMask,
			},
			BlackList: BlackList{
				RomVersions:       nonNilInts(doc.romVersions),
				SdmBuildIDStrings: nonNilStrings(doc.sdmBuildIDStrings),
				SdmSvns:           nonNilInts(doc.sdmSvns),
			},
		},
	}
	if doc.HasQek() {
		sub.ConfidentialData.Qek = &Qek{KeyName: doc.keyName}
	}

	switch doc.importMode {
	case interfaces.ImportModeEncrypted:
		if err := a.encryptConfidentialData(ctx, doc, &sub.ConfidentialData); err != nil {
			return nil, err
		}
	default:
		sub.ConfidentialData.AesKey.Value = doc.aesKeyValue
		if doc.HasQek() {
			sub.ConfidentialData.Qek.Value = doc.qekValue
		}
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize configuration: %w", err)
	}

	if a.debug {
		a.logSubmission(sub)
	}
	return body, nil
}

func (a *Assembler) encryptConfidentialData(ctx context.Context, doc *Document, cd *ConfidentialData) error {
	raw, err := a.keySource.FetchImportPublicKey(ctx)
	if err != nil {
		return &interfaces.PrecursorError{
			Resource: "service import public key",
			Err:      fmt.Errorf("%w: %w", interfaces.ErrImportKeyUnavailable, err),
		}
	}
	if len(raw) == 0 {
		return &interfaces.PrecursorError{Resource: "service import public key", Err: interfaces.ErrImportKeyUnavailable}
	}

	keyPEM, err := cryptoutils.DecodeImportPublicKey(raw)
	if err != nil {
		return &interfaces.PrecursorError{
			Resource: "service import public key",
			Err:      fmt.Errorf("%w: %w", interfaces.ErrImportKeyUnavailable, err),
		}
	}

	encryptor, err := cryptoutils.NewHybridEncryptor(keyPEM)
	if err != nil {
		return &interfaces.PrecursorError{
			Resource: "service import public key",
			Err:      fmt.Errorf("%w: %w", interfaces.ErrImportKeyUnavailable, err),
		}
	}
	defer encryptor.Destroy()

	wrappedKey, err := encryptor.WrappedKey()
	if err != nil {
		return err
	}

	aesCiphertext, err := encryptor.EncryptHex(doc.aesKeyValue)
	if err != nil {
		return fmt.Errorf("failed to encrypt aesKey.value: %w", err)
	}
	cd.EncryptedAesKey = &Envelope{Value: aesCiphertext, WrappedKey: wrappedKey}

	if doc.HasQek() {
		qekCiphertext, err := encryptor.EncryptHex(doc.qekValue)
		if err != nil {
			return fmt.Errorf("failed to encrypt qek.value: %w", err)
		}
		cd.EncryptedQek = &Envelope{Value: qekCiphertext, WrappedKey: wrappedKey}
	}

	a.log.Debug("encrypted confidential data", "importMode", doc.importMode, "qek", doc.HasQek())
	return nil
}

// logSubmission prints the indented body at debug level. Plaintext key
// values never reach the log.
func (a *Assembler) logSubmission(sub Submission) {
	if sub.ConfidentialData.AesKey.Value != "" {
		sub.ConfidentialData.AesKey.Value = "<redacted>"
	}
	if sub.ConfidentialData.Qek != nil && sub.ConfidentialData.Qek.Value != "" {
		qek := *sub.ConfidentialData.Qek
		qek.Value = "<redacted>"
		sub.ConfidentialData.Qek = &qek
	}

	indented, err := json.MarshalIndent(sub, "", "    ")
	if err != nil {
		a.log.Debug("could not render configuration", "err", err)
		return
	}
	a.log.Debug("assembled configuration", "body", string(indented))
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
