package booking

import "strings"

// RequiredFields lists the fields that must be collected before an appointment can be booked.
var RequiredFields = []string{FieldCustomerName, FieldPhoneNumber, FieldServiceType, FieldAddress}

// IsComplete reports whether every required field holds a non-blank value.
func IsComplete(s Slots) bool {
	return len(Missing(s)) == 0
}

// Missing returns the required fields that are still blank, in RequiredFields order.
func Missing(s Slots) []string {
	values := map[string]string{
		FieldCustomerName: s.CustomerName,
		FieldPhoneNumber:  s.PhoneNumber,
		FieldServiceType:  s.ServiceType,
		FieldAddress:      s.Address,
	}
	var missing []string
	for _, f := range RequiredFields {
		if strings.TrimSpace(values[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}
