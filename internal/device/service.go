package device

// CharacteristicIndex maps normalized characteristic UUIDs to characteristics
// of one service.
type CharacteristicIndex map[string]Characteristic

// IndexService locates serviceUUID among discovered services and indexes its
// characteristics by normalized UUID.
func IndexService(services []Service, serviceUUID string) (CharacteristicIndex, error) {
	for _, svc := range services {
		if !SameUUID(svc.UUID(), serviceUUID) {
			continue
		}
		idx := make(CharacteristicIndex)
		for _, c := range svc.GetCharacteristics() {
			idx[NormalizeUUID(c.UUID())] = c
		}
		return idx, nil
	}
	return nil, &NotFoundError{Resource: "service", UUIDs: []string{NormalizeUUID(serviceUUID)}}
}

// Lookup returns the characteristic with the given UUID.
func (idx CharacteristicIndex) Lookup(serviceUUID, charUUID string) (Characteristic, error) {
	if c, ok := idx[NormalizeUUID(charUUID)]; ok {
		return c, nil
	}
	return nil, &NotFoundError{
		Resource: "characteristic",
		UUIDs:    []string{NormalizeUUID(serviceUUID), NormalizeUUID(charUUID)},
	}
}
