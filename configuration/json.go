package configuration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ruteri/bkps-admin/interfaces"
)

// draftJSON mirrors the structured import schema. Pointers distinguish a
// missing key from a zero value.
type draftJSON struct {
	Name            *string `json:"name"`
	PufType         *string `json:"pufType"`
	RequireIidUds   *bool   `json:"requireIidUds"`
	TestModeSecrets *bool   `json:"testModeSecrets"`
	CorimURL        *string `json:"corimUrl"`

	Overbuild *struct {
		Max *int `json:"max"`
	} `json:"overbuild"`

	ConfidentialData *struct {
		ImportMode *string `json:"importMode"`
		AesKey     *struct {
			Value       *string `json:"value"`
			TestProgram *bool   `json:"testProgram"`
		} `json:"aesKey"`
		Qek *struct {
			Value   *string `json:"value"`
			KeyName *string `json:"keyName"`
		} `json:"qek"`
	} `json:"confidentialData"`

	AttestationConfig *struct {
		EfusesPublic *struct {
			Value *string `json:"value"`
			Mask  *string `json:"mask"`
		} `json:"efusesPublic"`
		BlackList *struct {
			SdmSvns           *[]any    `json:"sdmSvns"`
			SdmBuildIDStrings *[]string `json:"sdmBuildIdStrings"`
			RomVersions       *[]any    `json:"romVersions"`
		} `json:"blackList"`
	} `json:"attestationConfig"`
}

func missingKey(key string) error {
	return interfaces.NewValidationError(key, "required key is missing")
}

// ParseDraftJSON reads a configuration document in the structured import
// format. Malformed JSON or a missing required key is a ValidationError
// naming the key. Values themselves are checked later by Draft.Verify.
func ParseDraftJSON(raw []byte) (*Draft, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var in draftJSON
	if err := dec.Decode(&in); err != nil {
		return nil, interfaces.NewValidationError("", "payload for configuration is not valid JSON: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, interfaces.NewValidationError("", "payload for configuration is not valid JSON: unexpected data after the document")
	}

	d := NewDraft()

	cd := in.ConfidentialData
	if cd == nil {
		return nil, missingKey("confidentialData")
	}
	if cd.ImportMode == nil {
		return nil, missingKey("confidentialData.importMode")
	}
	d.ImportMode = *cd.ImportMode

	if in.Name == nil {
		return nil, missingKey("name")
	}
	d.Name = *in.Name

	if cd.AesKey == nil {
		return nil, missingKey("confidentialData.aesKey")
	}
	if cd.AesKey.TestProgram != nil {
		d.TestProgram = *cd.AesKey.TestProgram
	}

	if in.PufType == nil {
		return nil, missingKey("pufType")
	}
	d.PufType = *in.PufType

	if in.RequireIidUds != nil {
		d.RequireIidUds = *in.RequireIidUds
	}
	if in.TestModeSecrets != nil {
		d.TestModeSecrets = *in.TestModeSecrets
	}
	if in.CorimURL != nil {
		d.CorimURL = *in.CorimURL
	}

	if cd.Qek != nil {
		if cd.Qek.Value == nil {
			return nil, missingKey("confidentialData.qek.value")
		}
		if cd.Qek.KeyName == nil {
			return nil, missingKey("confidentialData.qek.keyName")
		}
		d.QekValue = *cd.Qek.Value
		d.KeyName = *cd.Qek.KeyName
	}

	if cd.AesKey.Value == nil {
		return nil, missingKey("confidentialData.aesKey.value")
	}
	d.AesKeyValue = *cd.AesKey.Value

	ac := in.AttestationConfig
	if ac == nil {
		return nil, missingKey("attestationConfig")
	}
	if ac.EfusesPublic == nil {
		return nil, missingKey("attestationConfig.efusesPublic")
	}
	if ac.EfusesPublic.Value == nil {
		return nil, missingKey("attestationConfig.efusesPublic.value")
	}
	if ac.EfusesPublic.Mask == nil {
		return nil, missingKey("attestationConfig.efusesPublic.mask")
	}
	d.EfusesPublicValue = *ac.EfusesPublic.Value
	d.EfusesPublicMask = *ac.EfusesPublic.Mask

	if in.Overbuild == nil || in.Overbuild.Max == nil {
		return nil, missingKey("overbuild.max")
	}
	d.OverbuildMax = *in.Overbuild.Max

	bl := ac.BlackList
	if bl == nil {
		return nil, missingKey("attestationConfig.blackList")
	}
	if bl.SdmSvns == nil {
		return nil, missingKey("attestationConfig.blackList.sdmSvns")
	}
	if bl.SdmBuildIDStrings == nil {
		return nil, missingKey("attestationConfig.blackList.sdmBuildIdStrings")
	}
	if bl.RomVersions == nil {
		return nil, missingKey("attestationConfig.blackList.romVersions")
	}
	d.SdmSvns = joinItems(*bl.SdmSvns)
	d.SdmBuildIDStrings = strings.Join(*bl.SdmBuildIDStrings, ",")
	d.RomVersions = joinItems(*bl.RomVersions)

	return d, nil
}

// joinItems renders JSON list items back into the comma separated form used
// by field-by-field input, so both paths go through the same list checks.
func joinItems(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case json.Number:
			parts = append(parts, v.String())
		case string:
			parts = append(parts, v)
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, ",")
}
