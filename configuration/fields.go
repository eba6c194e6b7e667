package configuration

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ruteri/bkps-admin/interfaces"
	"github.com/ruteri/bkps-admin/validation"
)

// Field is one step of field-by-field configuration input. Apply validates
// a single answer and stores it in the draft; a non-nil error means the
// answer was rejected and the same field should be asked again. Apply never
// blocks or does I/O, the prompting loop belongs to the caller.
type Field struct {
	Key   string
	Label string
	// When, if set, decides whether the field is asked at all.
	When  func(d *Draft) bool
	Apply func(d *Draft, input string) error
}

// Applies reports whether the field should be asked for d.
func (f Field) Applies(d *Draft) bool {
	return f.When == nil || f.When(d)
}

// InteractiveFields returns the input steps in prompt order.
func InteractiveFields() []Field {
	return []Field{
		{
			Key:   "importMode",
			Label: fmt.Sprintf("Choose import mode %v", interfaces.ImportModes),
			Apply: func(d *Draft, input string) error {
				mode, err := interfaces.ParseImportMode(input)
				if err != nil {
					return interfaces.NewValidationError("importMode", "%v", err)
				}
				d.ImportMode = string(mode)
				return nil
			},
		},
		{
			Key:   "name",
			Label: "Enter configuration name",
			Apply: func(d *Draft, input string) error {
				if input == "" {
					return interfaces.NewValidationError("name", "parameter cannot be empty")
				}
				d.Name = input
				return nil
			},
		},
		{
			Key:   "pufType",
			Label: fmt.Sprintf("Choose PUF Type %v", interfaces.PufTypes),
			Apply: func(d *Draft, input string) error {
				puf, err := interfaces.ParsePufType(input)
				if err != nil {
					return interfaces.NewValidationError("pufType", "%v", err)
				}
				d.PufType = string(puf)
				return nil
			},
		},
		yesNoField("requireIidUds", "Choose if IID UDS certificate chain should be verified in addition to regular chain [Y/N]",
			func(d *Draft, v bool) { d.RequireIidUds = v }),
		yesNoField("testModeSecrets", "Will this configuration be used for non secure (non real-OWNED) devices [Y/N]",
			func(d *Draft, v bool) { d.TestModeSecrets = v }),
		{
			Key:   "corimUrl",
			Label: "Enter CoRIM url",
			Apply: func(d *Draft, input string) error {
				if utf8.RuneCountInString(input) > MaxCorimURLLength {
					return interfaces.NewValidationError("corimUrl", "parameter should be left empty or have length between 1 and %d chars", MaxCorimURLLength)
				}
				d.CorimURL = input
				return nil
			},
		},
		{
			Key:   "overbuild.max",
			Label: "Enter overbuild max counter. Default: -1 for unlimited",
			Apply: func(d *Draft, input string) error {
				if input == "" {
					d.OverbuildMax = DefaultOverbuildMax
					return nil
				}
				n, err := strconv.Atoi(input)
				if err != nil || n < DefaultOverbuildMax {
					return interfaces.NewValidationError("overbuild.max", "parameter should be -1 (unlimited) or a non-negative number")
				}
				d.OverbuildMax = n
				return nil
			},
		},
		yesNoField("testProgram", "Will this Configuration be used for testing [Y/N]",
			func(d *Draft, v bool) { d.TestProgram = v }),
		{
			Key:   "aesKey.value",
			Label: "Enter AES Key or User AES Root Key Certificate hex encoded",
			Apply: func(d *Draft, input string) error {
				if !validation.IsHex(input) {
					return interfaces.NewValidationError("aesKey.value", "parameter should be hex encoded")
				}
				d.AesKeyValue = input
				return nil
			},
		},
		{
			Key:   "qek.value",
			Label: "Enter Quartus Encryption Key (QEK) hex encoded, empty to skip",
			Apply: func(d *Draft, input string) error {
				if input != "" && !validation.IsHex(input) {
					return interfaces.NewValidationError("qek.value", "parameter should be hex encoded")
				}
				d.QekValue = input
				return nil
			},
		},
		{
			Key:   "qek.keyName",
			Label: "Enter key name for QEK encryption key to be loaded from BKPS HSM",
			When:  (*Draft).HasQek,
			Apply: func(d *Draft, input string) error {
				if input == "" {
					return interfaces.NewValidationError("qek.keyName", "parameter cannot be empty")
				}
				d.KeyName = input
				return nil
			},
		},
		efusesField("efusesPublic.value", "Enter E-FUSES public value hex encoded",
			func(d *Draft, v string) { d.EfusesPublicValue = v }),
		efusesField("efusesPublic.mask", "Enter E-FUSES public mask hex encoded",
			func(d *Draft, v string) { d.EfusesPublicMask = v }),
		numberListField("blackList.sdmSvns", "List of SDM SVNs (should contain only numbers comma separated)",
			func(d *Draft, v string) { d.SdmSvns = v }),
		{
			Key:   "blackList.sdmBuildIdStrings",
			Label: "List of build ID strings (should contain strings comma separated)",
			Apply: func(d *Draft, input string) error {
				d.SdmBuildIDStrings = input
				return nil
			},
		},
		numberListField("blackList.romVersions", "List of ROM versions (should contain only numbers comma separated)",
			func(d *Draft, v string) { d.RomVersions = v }),
	}
}

func yesNoField(key, label string, set func(*Draft, bool)) Field {
	return Field{
		Key:   key,
		Label: label,
		Apply: func(d *Draft, input string) error {
			v, ok := validation.ParseYesNo(input)
			if !ok {
				return interfaces.NewValidationError(key, "answer Y or N")
			}
			set(d, v)
			return nil
		},
	}
}

func efusesField(key, label string, set func(*Draft, string)) Field {
	return Field{
		Key:   key,
		Label: label,
		Apply: func(d *Draft, input string) error {
			if !validation.IsHex(input) {
				return interfaces.NewValidationError(key, "parameter should be hex encoded")
			}
			if !validation.HasHexByteLength(input, validation.EfusesLengths...) {
				return interfaces.NewValidationError(key, "parameter should have 256 or 1024 bytes")
			}
			set(d, input)
			return nil
		},
	}
}

// numberListField accepts an empty answer as "no entries".
func numberListField(key, label string, set func(*Draft, string)) Field {
	return Field{
		Key:   key,
		Label: label,
		Apply: func(d *Draft, input string) error {
			if !validation.CheckNonNegativeIntegerList(validation.SplitList(input)) {
				return interfaces.NewValidationError(key, "list should contain only non-negative numbers")
			}
			set(d, strings.TrimSpace(input))
			return nil
		},
	}
}
