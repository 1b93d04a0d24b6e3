package units

import "math"

// Unit is one selectable measure.
type Unit struct {
	Measure     string `json:"measure"`
	Description string `json:"description"`
}

// Group is a family of measures that convert from the same base unit.
// Base is the identity measure of the group; it is empty for groups whose
// measures are all formatted text.
type Group struct {
	Name  string `json:"group"`
	Base  string `json:"base,omitempty"`
	Units []Unit `json:"units"`
}

// Has reports whether measure belongs to g.
func (g Group) Has(measure string) bool {
	for _, u := range g.Units {
		if u.Measure == measure {
			return true
		}
	}
	return false
}

// conversion is the pair of functions for one measure. from maps a base
// value into the measure, to maps it back. Text measures set text instead.
type conversion struct {
	from func(float64) float64
	to   func(float64) float64
	text func(float64) string
}

func identity() conversion {
	id := func(v float64) float64 { return v }
	return conversion{from: id, to: id}
}

// per returns the conversion for a measure worth factor base units.
func per(factor float64) conversion {
	return conversion{
		from: func(v float64) float64 { return v / factor },
		to:   func(v float64) float64 { return v * factor },
	}
}

func textual(f func(float64) string) conversion { return conversion{text: f} }

const (
	usGallon = 3.785411784e-3
	mile     = 1609.344
	nautMile = 1852.0
)

type entry struct {
	Unit
	conv conversion
}

type groupDef struct {
	name    string
	base    string
	entries []entry
}

func u(measure, desc string, c conversion) entry {
	return entry{Unit: Unit{Measure: measure, Description: desc}, conv: c}
}

var catalogue = []groupDef{
	{"Unitless", "unitless", []entry{
		u("unitless", "As-Is numeric value", identity()),
	}},
	{"Length", "m", []entry{
		u("m", "Metres (default)", identity()),
		u("fathom", "Fathoms", per(1.8288)),
		u("feet", "Feet", per(0.3048)),
		u("km", "Kilometers", per(1000)),
		u("nm", "Nautical Miles", per(nautMile)),
		u("mi", "Miles", per(mile)),
	}},
	{"Speed", "m/s", []entry{
		u("knots", "Knots - Nautical miles per hour", per(nautMile/3600)),
		u("kph", "kph - Kilometers per hour", per(1000.0/3600)),
		u("mph", "mph - Miles per hour", per(mile/3600)),
		u("m/s", "m/s - Meters per second (default)", identity()),
	}},
	{"Acceleration", "m/s2", []entry{
		u("m/s2", "Meters per second squared (default)", identity()),
		u("gee", "g-force", per(9.80665)),
	}},
	{"Force", "N", []entry{
		u("N", "Newton (default)", identity()),
		u("lbf", "Pound force", per(4.4482216152605)),
	}},
	{"Torque", "Nm", []entry{
		u("Nm", "Newton meter (default)", identity()),
	}},
	{"Volume", "m3", []entry{
		u("liter", "Liters (default)", per(0.001)),
		u("m3", "Cubic Meters", identity()),
		u("gallon", "Gallons", per(usGallon)),
	}},
	{"Density", "kg/m3", []entry{
		u("kg/m3", "kg/cubic meter (default)", identity()),
	}},
	{"Viscosity", "Pa.s", []entry{
		u("Pa.s", "Pascal seconds (default)", identity()),
	}},
	{"Flow", "m3/s", []entry{
		u("m3/s", "Cubic meters per second (default)", identity()),
		u("l/min", "Liters per minute", per(0.001/60)),
		u("l/h", "Liters per hour", per(0.001/3600)),
		u("g/min", "Gallons per minute", per(usGallon/60)),
		u("g/h", "Gallons per hour", per(usGallon/3600)),
	}},
	{"Pressure", "Pa", []entry{
		u("Pa", "Pascal (default)", identity()),
		u("bar", "Bars", per(1e5)),
		u("psi", "psi", per(6894.757293168)),
		u("mmHg", "mmHg", per(133.322368)),
		u("inHg", "inHg", per(3386.3881472)),
		u("hPa", "hPa", per(100)),
		u("mbar", "mbar", per(100)),
	}},
	{"Pressure Rate", "Pa/s", []entry{
		u("Pa/s", "Pascal per second (default)", identity()),
	}},
	{"Angle", "rad", []entry{
		u("rad", "Radians (default)", identity()),
		u("deg", "Degrees", per(math.Pi/180)),
		u("grad", "Gradians", per(math.Pi/200)),
	}},
	{"Angular Acceleration", "rad/s2", []entry{
		u("rad/s2", "Radians per second squared (default)", identity()),
	}},
	{"Angular Velocity", "rad/s", []entry{
		u("rad/s", "Radians per second (default)", identity()),
		u("deg/s", "Degrees per second", per(math.Pi/180)),
		u("deg/min", "Degrees per minute", per(math.Pi/180/60)),
	}},
	{"Temperature", "K", []entry{
		u("K", "Kelvin (default)", identity()),
		u("celsius", "Celsius", conversion{
			from: func(v float64) float64 { return v - 273.15 },
			to:   func(v float64) float64 { return v + 273.15 },
		}),
		u("fahrenheit", "Fahrenheit", conversion{
			from: func(v float64) float64 { return v*9/5 - 459.67 },
			to:   func(v float64) float64 { return (v + 459.67) * 5 / 9 },
		}),
	}},
	{"Frequency", "Hz", []entry{
		u("rpm", "RPM - Rotations per minute", per(1.0/60)),
		u("Hz", "Hz - Hertz (default)", identity()),
		u("KHz", "KHz - KiloHertz", per(1e3)),
		u("MHz", "MHz - MegaHertz", per(1e6)),
		u("GHz", "GHz - GigaHertz", per(1e9)),
	}},
	{"Current", "A", []entry{
		u("A", "Amperes (default)", identity()),
		u("mA", "Milliamperes", per(1e-3)),
	}},
	{"Potential", "V", []entry{
		u("V", "Volts (default)", identity()),
		u("mV", "Millivolts", per(1e-3)),
	}},
	{"Charge", "C", []entry{
		u("C", "Coulomb (default)", identity()),
		u("Ah", "Ampere Hours", per(3600)),
	}},
	{"Power", "W", []entry{
		u("W", "Watts (default)", identity()),
		u("mW", "Milliwatts", per(1e-3)),
	}},
	{"Energy", "J", []entry{
		u("J", "Joules (default)", identity()),
		u("kWh", "Kilo-Watt Hours", per(3.6e6)),
	}},
	{"Resistance", "ohm", []entry{
		u("ohm", "Ohm Ω (default)", identity()),
	}},
	{"Magnetism", "T", []entry{
		u("T", "Tesla intensity (default)", identity()),
	}},
	{"Illuminance", "Lux", []entry{
		u("Lux", "Lux - Lumen per square meter (default)", identity()),
	}},
	{"Ratio", "ratio", []entry{
		u("percent", "As percentage value", per(0.01)),
		u("percentraw", "As ratio 0-1 with % sign", identity()),
		u("ratio", "Ratio 0-1 (default)", identity()),
	}},
	{"Time", "s", []entry{
		u("s", "Seconds (default)", identity()),
		u("Minutes", "Minutes", per(60)),
		u("Hours", "Hours", per(3600)),
		u("Days", "Days", per(86400)),
		u("HH:MM:SS", "Hours:Minute:seconds", textual(formatDuration)),
	}},
	{"Position", "", []entry{
		u("latitudeMin", "Latitude in minutes", textual(positionMinutes("N", "S"))),
		u("latitudeSec", "Latitude in seconds", textual(positionSeconds("N", "S"))),
		u("longitudeMin", "Longitude in minutes", textual(positionMinutes("E", "W"))),
		u("longitudeSec", "Longitude in seconds", textual(positionSeconds("E", "W"))),
	}},
}

var (
	groups      []Group
	conversions = map[string]conversion{}
	owner       = map[string]int{}
)

func init() {
	for gi, gd := range catalogue {
		g := Group{Name: gd.name, Base: gd.base, Units: make([]Unit, 0, len(gd.entries))}
		for _, e := range gd.entries {
			if _, dup := conversions[e.Measure]; dup {
				panic("units: measure registered twice: " + e.Measure)
			}
			g.Units = append(g.Units, e.Unit)
			conversions[e.Measure] = e.conv
			owner[e.Measure] = gi
		}
		groups = append(groups, g)
	}
}

// BaseUnit describes a unit a bus path value may be published in.
type BaseUnit struct {
	Unit            string `json:"unit"`
	Display         string `json:"display"`
	Quantity        string `json:"quantity"`
	QuantityDisplay string `json:"quantityDisplay"`
	Description     string `json:"description"`
}

var baseUnits = []BaseUnit{
	{"s", "s", "Time", "t", "Elapsed time (interval) in seconds"},
	{"Hz", "Hz", "Frequency", "f", "Frequency in Hertz"},
	{"m3", "m³", "Volume", "V", "Volume in cubic meters"},
	{"m3/s", "m³/s", "Flow", "Q", "Liquid or gas flow in cubic meters per second"},
	{"kg/s", "kg/s", "Mass flow rate", "ṁ", "Liquid or gas flow in kilograms per second"},
	{"kg/m3", "kg/m³", "Density", "ρ", "Density in kg per cubic meter"},
	{"deg", "°", "Angle", "∠", "Latitude or longitude in decimal degrees"},
	{"rad", "㎭", "Angle", "∠", "Angular arc in radians"},
	{"rad/s", "㎭/s", "Rotation", "ω", "Angular rate in radians per second"},
	{"A", "A", "Current", "I", "Electrical current in ampere"},
	{"C", "C", "Charge", "Q", "Electrical charge in Coulomb"},
	{"V", "V", "Voltage", "V", "Electrical potential in volt"},
	{"W", "W", "Power", "P", "Power in watt"},
	{"Nm", "Nm", "Torque", "τ", "Torque in Newton meter"},
	{"J", "J", "Energy", "E", "Electrical energy in joule"},
	{"ohm", "Ω", "Resistance", "R", "Electrical resistance in ohm"},
	{"m", "m", "Distance", "d", "Distance in meters"},
	{"m/s", "m/s", "Speed", "v", "Speed in meters per second"},
	{"m2", "㎡", "Area", "A", "(Surface) area in square meters"},
	{"K", "K", "Temperature", "T", "Temperature in kelvin"},
	{"Pa", "Pa", "Pressure", "P", "Pressure in pascal"},
	{"kg", "kg", "Mass", "m", "Mass in kilogram"},
	{"ratio", "", "Ratio", "φ", "Relative value compared to reference or normal value. 0 = 0%, 1 = 100%, 1e-3 = 1 ppt"},
	{"m/s2", "m/s²", "Acceleration", "a", "Acceleration in meters per second squared"},
	{"rad/s2", "rad/s²", "Angular acceleration", "a", "Angular acceleration in radians per second squared"},
	{"N", "N", "Force", "F", "Force in newton"},
	{"T", "T", "Magnetic field", "B", "Magnetic field strength in tesla"},
	{"Lux", "lx", "Light Intensity", "Ev", "Light Intensity in lux"},
	{"Pa/s", "Pa/s", "Pressure rate", "R", "Pressure change rate in pascal per second"},
	{"Pa.s", "Pa s", "Viscosity", "μ", "Viscosity in pascal seconds"},
}

// BaseUnits returns the units bus paths may declare in their metadata.
func BaseUnits() []BaseUnit {
	return append([]BaseUnit(nil), baseUnits...)
}
