package types

// ScaleType is the display scale kind of a gauge.
type ScaleType string

const (
	ScaleLinear      ScaleType = "linear"
	ScaleLogarithmic ScaleType = "logarithmic"
	ScaleSquareRoot  ScaleType = "squareroot"
	ScalePower       ScaleType = "power"
)

// DisplayScale is the suggested display range of a numeric path.
type DisplayScale struct {
	Type  ScaleType `json:"type,omitempty"`
	Lower *float64  `json:"lower,omitempty"`
	Upper *float64  `json:"upper,omitempty"`
	Power *float64  `json:"power,omitempty"`
}

// MetadataRecord is the descriptive metadata of one path. Every optional
// field is nil-able so a record can also carry a partial update.
type MetadataRecord struct {
	Path            string        `json:"path"`
	Type            ValueType     `json:"type,omitempty"`
	DisplayName     *string       `json:"displayName,omitempty"`
	ShortName       *string       `json:"shortName,omitempty"`
	LongName        *string       `json:"longName,omitempty"`
	Description     *string       `json:"description,omitempty"`
	Units           *string       `json:"units,omitempty"`
	Timeout         *float64      `json:"timeout,omitempty"`
	DisplayScale    *DisplayScale `json:"displayScale,omitempty"`
	AlertMethod     []Method      `json:"alertMethod,omitempty"`
	WarnMethod      []Method      `json:"warnMethod,omitempty"`
	AlarmMethod     []Method      `json:"alarmMethod,omitempty"`
	EmergencyMethod []Method      `json:"emergencyMethod,omitempty"`
	Zones           []ZoneDef     `json:"zones,omitempty"`
}

// Merge overwrites every field set in partial and preserves the rest.
// Zones are an atomic unit: a non-empty partial list replaces the current
// list wholesale, an empty or missing one leaves it untouched.
func (m *MetadataRecord) Merge(partial *MetadataRecord) {
	if partial == nil {
		return
	}
	if partial.Type != "" {
		m.Type = partial.Type
	}
	mergePtr(&m.DisplayName, partial.DisplayName)
	mergePtr(&m.ShortName, partial.ShortName)
	mergePtr(&m.LongName, partial.LongName)
	mergePtr(&m.Description, partial.Description)
	mergePtr(&m.Units, partial.Units)
	mergePtr(&m.Timeout, partial.Timeout)
	if partial.DisplayScale != nil {
		m.DisplayScale = partial.DisplayScale.clone()
	}
	mergeMethods(&m.AlertMethod, partial.AlertMethod)
	mergeMethods(&m.WarnMethod, partial.WarnMethod)
	mergeMethods(&m.AlarmMethod, partial.AlarmMethod)
	mergeMethods(&m.EmergencyMethod, partial.EmergencyMethod)
	if len(partial.Zones) > 0 {
		m.Zones = CloneZones(partial.Zones)
	}
}

// Clone returns a deep copy of m.
func (m *MetadataRecord) Clone() *MetadataRecord {
	if m == nil {
		return nil
	}
	out := *m
	out.DisplayName = clonePtr(m.DisplayName)
	out.ShortName = clonePtr(m.ShortName)
	out.LongName = clonePtr(m.LongName)
	out.Description = clonePtr(m.Description)
	out.Units = clonePtr(m.Units)
	out.Timeout = clonePtr(m.Timeout)
	out.DisplayScale = m.DisplayScale.clone()
	out.AlertMethod = cloneMethods(m.AlertMethod)
	out.WarnMethod = cloneMethods(m.WarnMethod)
	out.AlarmMethod = cloneMethods(m.AlarmMethod)
	out.EmergencyMethod = cloneMethods(m.EmergencyMethod)
	out.Zones = CloneZones(m.Zones)
	return &out
}

// Methods returns the notification methods configured for s, or nil when
// s is not an alerting level or nothing is configured.
func (m *MetadataRecord) Methods(s Severity) []Method {
	if m == nil {
		return nil
	}
	switch s {
	case SeverityAlert:
		return cloneMethods(m.AlertMethod)
	case SeverityWarn:
		return cloneMethods(m.WarnMethod)
	case SeverityAlarm:
		return cloneMethods(m.AlarmMethod)
	case SeverityEmergency:
		return cloneMethods(m.EmergencyMethod)
	}
	return nil
}

// UnitsOrEmpty returns the configured measure or "".
func (m *MetadataRecord) UnitsOrEmpty() string {
	if m == nil || m.Units == nil {
		return ""
	}
	return *m.Units
}

func (d *DisplayScale) clone() *DisplayScale {
	if d == nil {
		return nil
	}
	out := *d
	out.Lower = clonePtr(d.Lower)
	out.Upper = clonePtr(d.Upper)
	out.Power = clonePtr(d.Power)
	return &out
}

func mergePtr[T any](dst **T, src *T) {
	if src != nil {
		*dst = clonePtr(src)
	}
}

func mergeMethods(dst *[]Method, src []Method) {
	if src != nil {
		*dst = cloneMethods(src)
	}
}

func cloneMethods(ms []Method) []Method {
	if ms == nil {
		return nil
	}
	return append([]Method(nil), ms...)
}
