package configuration

// Draft is the raw configuration as gathered from a JSON document or from
// field-by-field input. List fields hold comma separated text, exactly as an
// operator would type them. A Draft is only ever turned into a Document
// through Verify.
type Draft struct {
	ImportMode      string
	Name            string
	PufType         string
	RequireIidUds   bool
	TestModeSecrets bool
	CorimURL        string
	OverbuildMax    int
	TestProgram     bool

	AesKeyValue string
	QekValue    string
	KeyName     string

	EfusesPublicValue string
	EfusesPublicMask  string

	RomVersions       string
	SdmBuildIDStrings string
	SdmSvns           string
}

// DefaultOverbuildMax means "no overbuild limit".
const DefaultOverbuildMax = -1

// NewDraft returns an empty draft with defaults applied.
func NewDraft() *Draft {
	return &Draft{OverbuildMax: DefaultOverbuildMax}
}

// HasQek reports whether a QEK value was supplied.
func (d *Draft) HasQek() bool {
	return d.QekValue != ""
}
