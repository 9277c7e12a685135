package inspector

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Report is the GATT metadata of one peripheral, in discovery order.
type Report struct {
	Address  string
	Services []ServiceReport
}

// ServiceReport describes one service.
type ServiceReport struct {
	UUID            string
	Name            string
	Characteristics []CharacteristicReport
}

// CharacteristicReport describes one characteristic and the value read from it.
type CharacteristicReport struct {
	UUID       string
	Name       string
	Properties []string
	Readable   bool
	Value      []byte
	Encodings  []string
	// ReadError is set when a read was attempted and failed.
	ReadError   string
	Descriptors []DescriptorReport
}

// DescriptorReport describes one descriptor. Readable is true when discovery
// managed to read its value.
type DescriptorReport struct {
	UUID      string
	Name      string
	Readable  bool
	Value     []byte
	Encodings []string
	Parsed    interface{}
}

// BuildReport reads every readable or notifiable characteristic and collects
// its candidate encodings.
func BuildReport(address string, services []device.Service, readTimeout time.Duration, logger *logrus.Logger) *Report {
	if logger == nil {
		logger = logrus.New()
	}

	report := &Report{Address: address, Services: make([]ServiceReport, 0, len(services))}
	for _, svc := range services {
		sr := ServiceReport{UUID: svc.UUID(), Name: svc.KnownName()}
		for _, char := range svc.GetCharacteristics() {
			sr.Characteristics = append(sr.Characteristics, characteristicReport(char, readTimeout, logger))
		}
		report.Services = append(report.Services, sr)
	}
	return report
}

func characteristicReport(char device.Characteristic, readTimeout time.Duration, logger *logrus.Logger) CharacteristicReport {
	props := char.GetProperties()
	cr := CharacteristicReport{
		UUID:       char.UUID(),
		Name:       char.KnownName(),
		Properties: device.PropertyNames(props),
		Encodings:  []string{},
	}

	notifiable := false
	if props != nil {
		cr.Readable = props.Read() != nil
		notifiable = props.Notify() != nil
	}

	if cr.Readable || notifiable {
		value, err := char.Read(readTimeout)
		if err != nil {
			cr.ReadError = err.Error()
			logger.WithFields(logrus.Fields{
				"characteristic": cr.UUID,
				"error":          err,
			}).Debug("Characteristic read failed")
		} else {
			cr.Value = value
			cr.Encodings = DetectEncodings(value)
		}
	}

	for _, desc := range char.GetDescriptors() {
		cr.Descriptors = append(cr.Descriptors, descriptorReport(desc))
	}
	return cr
}

func descriptorReport(desc device.Descriptor) DescriptorReport {
	dr := DescriptorReport{
		UUID:      desc.UUID(),
		Name:      desc.KnownName(),
		Encodings: []string{},
	}
	value := desc.Value()
	if value == nil {
		return dr
	}
	if _, failed := desc.ParsedValue().(*device.DescriptorError); failed {
		return dr
	}
	dr.Readable = true
	dr.Value = value
	dr.Encodings = DetectEncodings(value)
	dr.Parsed = desc.ParsedValue()
	return dr
}

// MarshalJSON keeps field order stable and services in discovery order.
func (r *Report) MarshalJSON() ([]byte, error) {
	services := make([]*orderedmap.OrderedMap[string, any], 0, len(r.Services))
	for _, svc := range r.Services {
		chars := make([]*orderedmap.OrderedMap[string, any], 0, len(svc.Characteristics))
		for _, c := range svc.Characteristics {
			chars = append(chars, c.orderedMap())
		}

		om := orderedmap.New[string, any]()
		om.Set("uuid", svc.UUID)
		om.Set("name", svc.Name)
		om.Set("characteristics", chars)
		services = append(services, om)
	}

	root := orderedmap.New[string, any]()
	root.Set("address", r.Address)
	root.Set("services", services)
	return json.Marshal(root)
}

func (c CharacteristicReport) orderedMap() *orderedmap.OrderedMap[string, any] {
	descs := make([]*orderedmap.OrderedMap[string, any], 0, len(c.Descriptors))
	for _, d := range c.Descriptors {
		dm := orderedmap.New[string, any]()
		dm.Set("uuid", d.UUID)
		dm.Set("name", d.Name)
		dm.Set("readable", d.Readable)
		dm.Set("value", hexOrNil(d.Value))
		dm.Set("encodings", d.Encodings)
		if d.Parsed != nil {
			dm.Set("parsed", d.Parsed)
		}
		descs = append(descs, dm)
	}

	om := orderedmap.New[string, any]()
	om.Set("uuid", c.UUID)
	om.Set("name", c.Name)
	om.Set("properties", c.Properties)
	om.Set("readable", c.Readable)
	om.Set("value", hexOrNil(c.Value))
	om.Set("encodings", c.Encodings)
	if c.ReadError != "" {
		om.Set("read_error", c.ReadError)
	}
	om.Set("descriptors", descs)
	return om
}

func hexOrNil(b []byte) any {
	if b == nil {
		return nil
	}
	return hex.EncodeToString(b)
}

// WriteText renders the report as the characteristic and descriptor tables
// printed by `ibbq inspect`.
func (r *Report) WriteText(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Device: %s\n", r.Address)
	for _, svc := range r.Services {
		sb.WriteString("====================================\n")
		fmt.Fprintf(&sb, "Service: UUID=%s, name=%s\n", svc.UUID, displayName(svc.Name))
		sb.WriteString("------------------------------------\n")
		sb.WriteString("Characteristics\n")
		sb.WriteString("UUID, name, is_readable, flags, possible_encodings\n")
		for _, c := range svc.Characteristics {
			fmt.Fprintf(&sb, "%s, %s, %t, %s, [%s]\n",
				c.UUID, displayName(c.Name), c.Readable, strings.Join(c.Properties, "|"), strings.Join(c.Encodings, " "))
		}

		sb.WriteString("------------------------------------\n")
		sb.WriteString("Characteristic Descriptors\n")
		sb.WriteString("Characteristic UUID, Descriptor UUID, name, is_readable, possible_encodings, data\n")
		for _, c := range svc.Characteristics {
			for _, d := range c.Descriptors {
				data := "N/A"
				if d.Readable {
					data = hex.EncodeToString(d.Value)
				}
				fmt.Fprintf(&sb, "%s, %s, %s, %t, [%s], %s\n",
					c.UUID, d.UUID, displayName(d.Name), d.Readable, strings.Join(d.Encodings, " "), data)
			}
		}
	}
	sb.WriteString("====================================\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func displayName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}
