// Package wire implements the carbonet sensor packet format.
//
// Payloads are ASCII, comma separated, ordered key-value pairs:
//	flat:         SENSOR:<id>,COMPANY:<group>,CO2:<ppm>,TIME:<micros>
//	hierarchical: SENSOR:<id>,ZONE:<group>,CO2:<ppm>
// Tag order is fixed and significant. Decode locates tags by first
// occurrence, so a value must not contain another tag literal; deployed
// gateways depend on this exact shape, do not change it.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

type Topology uint8

const (
	Flat Topology = iota
	Hierarchical
)

func (t Topology) String() string {
	switch t {
	case Flat:
		return "flat"
	case Hierarchical:
		return "hierarchical"
	}
	return fmt.Sprintf("Topology(%d)", uint8(t))
}

func ParseTopology(s string) (Topology, error) {
	switch s {
	case "flat":
		return Flat, nil
	case "hierarchical", "hier":
		return Hierarchical, nil
	}
	return Flat, errors.Errorf("wire: unknown topology '%s'", s)
}

// ErrMalformed is the root cause of every Decode failure.
// Use errors.Cause to test for it.
var ErrMalformed = errors.New("wire: malformed packet")

const (
	tagSensor  = "SENSOR:"
	tagCompany = "COMPANY:"
	tagZone    = "ZONE:"
	tagCO2     = "CO2:"
	tagTime    = "TIME:"
)

// Reading is one CO2 measurement. Group is the company id in the flat
// topology and the zone id in the hierarchical one. Time is micros since
// run start; hierarchical payloads do not carry it.
type Reading struct {
	Sensor uint32
	Group  uint32
	CO2    float64
	Time   uint64
}

func Encode(r Reading, topo Topology) []byte {
	co2 := strconv.FormatFloat(r.CO2, 'g', -1, 64)
	var s string
	if topo == Hierarchical {
		s = fmt.Sprintf("%s%d,%s%d,%s%s", tagSensor, r.Sensor, tagZone, r.Group, tagCO2, co2)
	} else {
		s = fmt.Sprintf("%s%d,%s%d,%s%s,%s%d", tagSensor, r.Sensor, tagCompany, r.Group, tagCO2, co2, tagTime, r.Time)
	}
	return []byte(s)
}

func Decode(payload []byte, topo Topology) (Reading, error) {
	var r Reading
	s := string(payload)

	groupTag := tagCompany
	if topo == Hierarchical {
		groupTag = tagZone
	}

	sensorPos, err := tagIndex(s, tagSensor)
	if err != nil {
		return r, err
	}
	groupPos, err := tagIndex(s, groupTag)
	if err != nil {
		return r, err
	}
	co2Pos, err := tagIndex(s, tagCO2)
	if err != nil {
		return r, err
	}
	timePos := -1
	if topo == Flat {
		if timePos, err = tagIndex(s, tagTime); err != nil {
			return r, err
		}
	}

	sensor, err := parseUint32(field(s, sensorPos+len(tagSensor), groupPos), tagSensor)
	if err != nil {
		return r, err
	}
	group, err := parseUint32(field(s, groupPos+len(groupTag), co2Pos), groupTag)
	if err != nil {
		return r, err
	}
	co2str := field(s, co2Pos+len(tagCO2), timePos)
	co2, err := strconv.ParseFloat(co2str, 64)
	if err != nil {
		return r, errors.Annotatef(ErrMalformed, "tag %s value '%s'", tagCO2, co2str)
	}

	r.Sensor = sensor
	r.Group = group
	r.CO2 = co2
	if topo == Flat {
		tstr := field(s, timePos+len(tagTime), -1)
		t, err := strconv.ParseUint(tstr, 10, 64)
		if err != nil {
			return r, errors.Annotatef(ErrMalformed, "tag %s value '%s'", tagTime, tstr)
		}
		r.Time = t
	}
	return r, nil
}

func tagIndex(s, tag string) (int, error) {
	i := strings.Index(s, tag)
	if i < 0 {
		return -1, errors.Annotatef(ErrMalformed, "tag %s absent", tag)
	}
	return i, nil
}

// field cuts the value between the end of one tag and the start of the
// next, dropping the separator comma. next < 0 means end of payload.
func field(s string, from, next int) string {
	if next < 0 {
		if from > len(s) {
			return ""
		}
		return s[from:]
	}
	if next <= from {
		return ""
	}
	return s[from : next-1]
}

func parseUint32(s, tag string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Annotatef(ErrMalformed, "tag %s value '%s'", tag, s)
	}
	return uint32(v), nil
}
