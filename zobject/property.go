package zobject

import (
	"github.com/bcorrigan/zmachine/zcore"
)

type Property struct {
	Id                   uint8
	Length               uint8
	Data                 []uint8
	PropertyHeaderLength uint8
	Address              uint32
	DataAddress          uint32 // 0 when the value came from the defaults table
}

func maxPropertyId(version uint8) uint8 {
	if version >= 4 {
		return 63
	}
	return 31
}

// GetPropertyLength recovers a property's length from the address of its
// first data byte by working back through the size byte(s) preceding it.
func GetPropertyLength(core *zcore.Core, addr uint32) uint16 {
	if addr == 0 {
		return 0 // Special case required by some story files
	}

	prevByte := core.ReadByte(addr - 1)
	if core.Version <= 3 {
		return uint16(prevByte>>5) + 1
	}

	if prevByte&0b1000_0000 != 0 {
		length := uint16(prevByte & 0b11_1111)
		if length == 0 {
			length = 64
		}
		return length
	}
	if prevByte&0b100_0000 != 0 {
		return 2
	}
	return 1
}

// firstPropertyAddress - the property entries start directly after the
// length prefixed short name at the head of the property table.
func (o *Object) firstPropertyAddress(core *zcore.Core) uint32 {
	nameLength := core.ReadByte(uint32(o.PropertyPointer))
	return uint32(o.PropertyPointer) + 1 + uint32(nameLength)*2
}

func (o *Object) SetProperty(propertyId uint8, value uint16, core *zcore.Core) {
	currentPtr := o.firstPropertyAddress(core)

	for core.ReadByte(currentPtr) != 0 {
		property := GetPropertyByAddress(currentPtr, core)

		if property.Id == propertyId {
			switch property.Length {
			case 1:
				core.WriteByte(property.DataAddress, uint8(value))
			case 2:
				core.WriteHalfWord(property.DataAddress, value)
			default:
				panic(zcore.Faultf(zcore.InvalidProperty, "property %d on object %d is %d bytes wide, can't set it", propertyId, o.Id, property.Length))
			}

			return
		}

		currentPtr = property.DataAddress + uint32(property.Length)
	}

	panic(zcore.Faultf(zcore.InvalidProperty, "property %d does not exist on object %d", propertyId, o.Id))
}

// GetProperty - a missing property resolves to the defaults table at the
// head of the object table, flagged with a zero DataAddress.
func (o *Object) GetProperty(propertyId uint8, core *zcore.Core) Property {
	if propertyId == 0 || propertyId > maxPropertyId(core.Version) {
		panic(zcore.Faultf(zcore.InvalidProperty, "property %d out of range for version %d", propertyId, core.Version))
	}

	currentPtr := o.firstPropertyAddress(core)

	for core.ReadByte(currentPtr) != 0 {
		property := GetPropertyByAddress(currentPtr, core)

		if property.Id == propertyId {
			return property
		}

		currentPtr = property.DataAddress + uint32(property.Length)
	}

	defaultAddress := uint32(core.ObjectTableBase) + 2*uint32(propertyId-1)
	return Property{
		Id:     propertyId,
		Length: 2,
		Data:   core.ReadSlice(defaultAddress, defaultAddress+2),
	}
}

func GetPropertyByAddress(propertyAddr uint32, core *zcore.Core) Property {
	propertySizeByte := core.ReadByte(propertyAddr)
	length := (propertySizeByte >> 5) + 1
	id := propertySizeByte & 0b1_1111
	propertyHeaderLength := uint8(1)

	if core.Version >= 4 {
		id = propertySizeByte & 0b11_1111
		if propertySizeByte>>7 == 1 {
			length = core.ReadByte(propertyAddr+1) & 0b11_1111
			if length == 0 {
				length = 64
			}
			propertyHeaderLength = 2
		} else {
			length = ((propertySizeByte >> 6) & 1) + 1
		}
	}

	dataAddress := propertyAddr + uint32(propertyHeaderLength)

	return Property{
		Id:                   id,
		Length:               length,
		Data:                 core.ReadSlice(dataAddress, dataAddress+uint32(length)),
		PropertyHeaderLength: propertyHeaderLength,
		Address:              propertyAddr,
		DataAddress:          dataAddress,
	}
}

// GetNextProperty walks the descending property list: 0 asks for the first
// property number, the last property is followed by 0, and asking about a
// property the object doesn't have is a fault.
func (o *Object) GetNextProperty(propertyId uint8, core *zcore.Core) uint8 {
	currentPtr := o.firstPropertyAddress(core)

	if propertyId == 0 {
		if core.ReadByte(currentPtr) == 0 {
			return 0
		}
		return GetPropertyByAddress(currentPtr, core).Id
	}

	for core.ReadByte(currentPtr) != 0 {
		property := GetPropertyByAddress(currentPtr, core)
		currentPtr = property.DataAddress + uint32(property.Length)

		if property.Id == propertyId {
			if core.ReadByte(currentPtr) == 0 {
				return 0
			}
			return GetPropertyByAddress(currentPtr, core).Id
		}
	}

	panic(zcore.Faultf(zcore.InvalidProperty, "property %d does not exist on object %d", propertyId, o.Id))
}
