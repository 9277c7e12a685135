package device

// Assigned numbers for the attributes an iBBQ thermometer and the inspect
// command are likely to meet. Vendor iBBQ UUIDs are included so dumps are
// readable.
var (
	knownServices = map[string]string{
		"1800": "Generic Access",
		"1801": "Generic Attribute",
		"180a": "Device Information",
		"180f": "Battery Service",
		"fff0": "iBBQ",
	}

	knownCharacteristics = map[string]string{
		"2a00": "Device Name",
		"2a01": "Appearance",
		"2a04": "Peripheral Preferred Connection Parameters",
		"2a05": "Service Changed",
		"2a19": "Battery Level",
		"2a23": "System ID",
		"2a24": "Model Number String",
		"2a25": "Serial Number String",
		"2a26": "Firmware Revision String",
		"2a27": "Hardware Revision String",
		"2a28": "Software Revision String",
		"2a29": "Manufacturer Name String",
		"2a50": "PnP ID",
		"fff1": "iBBQ Settings Result",
		"fff2": "iBBQ Account and Verify",
		"fff3": "iBBQ History Data",
		"fff4": "iBBQ Real-time Data",
		"fff5": "iBBQ Settings",
	}

	knownDescriptors = map[string]string{
		"2900": "Characteristic Extended Properties",
		"2901": "Characteristic User Description",
		"2902": "Client Characteristic Configuration",
		"2903": "Server Characteristic Configuration",
		"2904": "Characteristic Presentation Format",
	}
)

// LookupService returns the assigned name of a service or "".
func LookupService(uuid string) string { return knownServices[NormalizeUUID(uuid)] }

// LookupCharacteristic returns the assigned name of a characteristic or "".
func LookupCharacteristic(uuid string) string { return knownCharacteristics[NormalizeUUID(uuid)] }

// LookupDescriptor returns the assigned name of a descriptor or "".
func LookupDescriptor(uuid string) string { return knownDescriptors[NormalizeUUID(uuid)] }
