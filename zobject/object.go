package zobject

import (
	"github.com/bcorrigan/zmachine/zcore"
	"github.com/bcorrigan/zmachine/zstring"
)

// Object is a typed view over one record of the object table. The link
// setters write through to memory as well as updating the view.
type Object struct {
	BaseAddress     uint32
	Id              uint16
	Name            string
	Attributes      uint64 // Bytes 0-3 are valid in all versions, 4-5 are only populated in V4+
	Parent          uint16 // uint8 on v1-3
	Sibling         uint16 // uint8 on v1-3
	Child           uint16 // uint8 on v1-3
	PropertyPointer uint16
}

// MaxObjectId - object ids are a byte on v1-3 and a word on v4+
func MaxObjectId(version uint8) uint16 {
	if version >= 4 {
		return 0xffff
	}
	return 0xff
}

func attributeCount(version uint8) uint16 {
	if version >= 4 {
		return 48
	}
	return 32
}

func GetObject(objId uint16, core *zcore.Core, alphabets *zstring.Alphabets) Object {
	if objId == 0 || objId > MaxObjectId(core.Version) {
		panic(zcore.Faultf(zcore.InvalidObject, "object %d does not exist", objId))
	}

	objectTableBase := uint32(core.ObjectTableBase)

	if core.Version >= 4 {
		objectBase := objectTableBase + 63*2 + uint32(objId-1)*14
		propertyPtr := core.ReadHalfWord(objectBase + 12)
		nameLength := core.ReadByte(uint32(propertyPtr))
		name, _ := zstring.Decode(core, uint32(propertyPtr)+1, uint32(propertyPtr)+1+uint32(nameLength)*2, alphabets, true)

		return Object{
			Id:              objId,
			Name:            name,
			Attributes:      (core.ReadLongWord(objectBase) >> 16) << 16,
			Parent:          core.ReadHalfWord(objectBase + 6),
			Sibling:         core.ReadHalfWord(objectBase + 8),
			Child:           core.ReadHalfWord(objectBase + 10),
			PropertyPointer: propertyPtr,
			BaseAddress:     objectBase,
		}
	}

	objectBase := objectTableBase + 31*2 + uint32(objId-1)*9
	propertyPtr := core.ReadHalfWord(objectBase + 7)
	nameLength := core.ReadByte(uint32(propertyPtr))
	name, _ := zstring.Decode(core, uint32(propertyPtr)+1, uint32(propertyPtr)+1+uint32(nameLength)*2, alphabets, true)

	return Object{
		Id:              objId,
		Name:            name,
		Attributes:      uint64(core.ReadHalfWord(objectBase))<<48 | uint64(core.ReadHalfWord(objectBase+2))<<32,
		Parent:          uint16(core.ReadByte(objectBase + 4)),
		Sibling:         uint16(core.ReadByte(objectBase + 5)),
		Child:           uint16(core.ReadByte(objectBase + 6)),
		PropertyPointer: propertyPtr,
		BaseAddress:     objectBase,
	}
}

func checkAttribute(attribute uint16, core *zcore.Core) {
	if attribute >= attributeCount(core.Version) {
		panic(zcore.Faultf(zcore.InvalidObject, "attribute %d out of range for version %d", attribute, core.Version))
	}
}

func (o *Object) TestAttribute(attribute uint16, core *zcore.Core) bool {
	checkAttribute(attribute, core)
	mask := uint64(1) << (63 - attribute)

	return o.Attributes&mask == mask
}

func (o *Object) writeAttributes(core *zcore.Core) {
	core.WriteHalfWord(o.BaseAddress, uint16(o.Attributes>>48))
	core.WriteHalfWord(o.BaseAddress+2, uint16(o.Attributes>>32))
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+4, uint16(o.Attributes>>16))
	}
}

func (o *Object) SetAttribute(attribute uint16, core *zcore.Core) {
	checkAttribute(attribute, core)
	o.Attributes |= uint64(1) << (63 - attribute)
	o.writeAttributes(core)
}

func (o *Object) ClearAttribute(attribute uint16, core *zcore.Core) {
	checkAttribute(attribute, core)
	o.Attributes &^= uint64(1) << (63 - attribute)
	o.writeAttributes(core)
}

func (o *Object) SetParent(parent uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+6, parent)
	} else {
		core.WriteByte(o.BaseAddress+4, uint8(parent))
	}
	o.Parent = parent
}

func (o *Object) SetSibling(sibling uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+8, sibling)
	} else {
		core.WriteByte(o.BaseAddress+5, uint8(sibling))
	}
	o.Sibling = sibling
}

func (o *Object) SetChild(child uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+10, child)
	} else {
		core.WriteByte(o.BaseAddress+6, uint8(child))
	}
	o.Child = child
}
