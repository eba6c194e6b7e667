package configuration

import (
	"slices"
	"unicode/utf8"

	"github.com/ruteri/bkps-admin/interfaces"
	"github.com/ruteri/bkps-admin/validation"
)

// MaxCorimURLLength is the longest accepted CoRIM URL.
const MaxCorimURLLength = 255

// Document is a verified, immutable device configuration. It only exists as
// the result of Draft.Verify.
type Document struct {
	importMode      interfaces.ImportMode
	name            string
	pufType         interfaces.PufType
	requireIidUds   bool
	testModeSecrets bool
	corimURL        string
	overbuildMax    int
	testProgram     bool

	aesKeyValue string
	qekValue    string
	keyName     string

	efusesPublicValue string
	efusesPublicMask  string

	romVersions       []int
	sdmBuildIDStrings []string
	sdmSvns           []int
}

// Verify checks every required field and every length and format rule, in
// a fixed order, and stops at the first violation. The returned error is a
// *interfaces.ValidationError naming the field.
func (d *Draft) Verify() (*Document, error) {
	if d.ImportMode == "" {
		return nil, interfaces.NewValidationError("importMode", "parameter is required")
	}
	mode, err := interfaces.ParseImportMode(d.ImportMode)
	if err != nil {
		return nil, interfaces.NewValidationError("importMode", "%v", err)
	}

	if d.Name == "" {
		return nil, interfaces.NewValidationError("name", "parameter is required")
	}

	if d.PufType == "" {
		return nil, interfaces.NewValidationError("pufType", "parameter is required")
	}
	puf, err := interfaces.ParsePufType(d.PufType)
	if err != nil {
		return nil, interfaces.NewValidationError("pufType", "%v", err)
	}

	if d.AesKeyValue == "" {
		return nil, interfaces.NewValidationError("aesKey.value", "parameter is required")
	}
	if !validation.IsHex(d.AesKeyValue) {
		return nil, interfaces.NewValidationError("aesKey.value", "parameter should be hex encoded")
	}

	if d.HasQek() {
		if !validation.IsHex(d.QekValue) {
			return nil, interfaces.NewValidationError("qek.value", "parameter should be hex encoded")
		}
		if d.KeyName == "" {
			return nil, interfaces.NewValidationError("qek.keyName", "parameter is required when a QEK is provided")
		}
	}

	if err := verifyEfuses("efusesPublic.value", d.EfusesPublicValue); err != nil {
		return nil, err
	}
	if err := verifyEfuses("efusesPublic.mask", d.EfusesPublicMask); err != nil {
		return nil, err
	}

	if utf8.RuneCountInString(d.CorimURL) > MaxCorimURLLength {
		return nil, interfaces.NewValidationError("corimUrl", "parameter should be empty or at most %d chars", MaxCorimURLLength)
	}

	if d.OverbuildMax < DefaultOverbuildMax {
		return nil, interfaces.NewValidationError("overbuild.max", "parameter should be -1 (unlimited) or a non-negative number")
	}

	romItems := validation.SplitList(d.RomVersions)
	if !validation.CheckNonNegativeIntegerList(romItems) {
		return nil, interfaces.NewValidationError("blackList.romVersions", "list should contain only non-negative numbers")
	}

	svnItems := validation.SplitList(d.SdmSvns)
	if !validation.CheckNonNegativeIntegerList(svnItems) {
		return nil, interfaces.NewValidationError("blackList.sdmSvns", "list should contain only non-negative numbers")
	}

	doc := &Document{
		importMode:        mode,
		name:              d.Name,
		pufType:           puf,
		requireIidUds:     d.RequireIidUds,
		testModeSecrets:   d.TestModeSecrets,
		corimURL:          d.CorimURL,
		overbuildMax:      d.OverbuildMax,
		testProgram:       d.TestProgram,
		aesKeyValue:       d.AesKeyValue,
		efusesPublicValue: d.EfusesPublicValue,
		efusesPublicMask:  d.EfusesPublicMask,
		romVersions:       validation.ParseIntegerList(romItems),
		sdmBuildIDStrings: validation.ParseStringList(d.SdmBuildIDStrings),
		sdmSvns:           validation.ParseIntegerList(svnItems),
	}
	if d.HasQek() {
		doc.qekValue = d.QekValue
		doc.keyName = d.KeyName
	}
	return doc, nil
}

func verifyEfuses(field, value string) error {
	switch {
	case value == "":
		return interfaces.NewValidationError(field, "parameter is required")
	case !validation.IsHex(value):
		return interfaces.NewValidationError(field, "parameter should be hex encoded")
	case !validation.HasHexByteLength(value, validation.EfusesLengths...):
		return interfaces.NewValidationError(field, "parameter should have 256 or 1024 bytes, got %d", validation.HexByteLength(value))
	}
	return nil
}

func (d *Document) ImportMode() interfaces.ImportMode { return d.importMode }
func (d *Document) Name() string                      { return d.name }
func (d *Document) PufType() interfaces.PufType       { return d.pufType }
func (d *Document) RequireIidUds() bool               { return d.requireIidUds }
func (d *Document) TestModeSecrets() bool             { return d.testModeSecrets }
func (d *Document) CorimURL() string                  { return d.corimURL }
func (d *Document) OverbuildMax() int                 { return d.overbuildMax }
func (d *Document) TestProgram() bool                 { return d.testProgram }
func (d *Document) AesKeyValue() string               { return d.aesKeyValue }
func (d *Document) HasQek() bool                      { return d.qekValue != "" }
func (d *Document) QekValue() string                  { return d.qekValue }
func (d *Document) KeyName() string                   { return d.keyName }
func (d *Document) EfusesPublicValue() string         { return d.efusesPublicValue }
func (d *Document) EfusesPublicMask() string          { return d.efusesPublicMask }

// RomVersions returns a copy of the blocked ROM versions.
func (d *Document) RomVersions() []int { return slices.Clone(d.romVersions) }

// SdmBuildIDStrings returns a copy of the blocked SDM build ID strings.
func (d *Document) SdmBuildIDStrings() []string { return slices.Clone(d.sdmBuildIDStrings) }

// SdmSvns returns a copy of the blocked SDM security version numbers.
func (d *Document) SdmSvns() []int { return slices.Clone(d.sdmSvns) }
