package serialize

import (
	"fmt"
	"sort"

	"github.com/jeeves-cluster-organization/velcro-core/typeid"
)

// upgradeKind distinguishes the two upgrade shapes a field can carry.
type upgradeKind int

const (
	upgradeRename upgradeKind = iota
	upgradeTypeChange
)

// upgrade is one versioned migration step for a single field.
type upgrade struct {
	kind upgradeKind
	from uint32
	to   uint32

	// rename
	oldName string
	newName string

	// type change
	fromType typeid.ID
	toType   typeid.ID
	convert  func(oldValue any) (any, error)
}

// UpgradeHandler holds every versioned field migration registered for
// one ClassData, keyed by field name CRC then by from-version, the same
// shape as the original engine's upgrades[field_crc][from_version].
type UpgradeHandler struct {
	byField map[uint32][]*upgrade

	// deprecateConvert is set only for ClassDeprecate placeholders: it
	// receives the stored subtree and reports whether it successfully
	// converted it (false means drop silently).
	deprecateConvert func(*DataElementNode) bool
}

// NewUpgradeHandler returns an empty UpgradeHandler.
func NewUpgradeHandler() *UpgradeHandler {
	return &UpgradeHandler{byField: make(map[uint32][]*upgrade)}
}

// AddRename registers a field rename applied when upgrading from
// fromVersion to toVersion. Returns an error if the exact same upgrade
// (kind, field, from-version) is already registered.
func (h *UpgradeHandler) AddRename(oldName, newName string, fromVersion, toVersion uint32) error {
	crc := NameCRC(oldName)
	if err := h.checkDuplicate(crc, upgradeRename, fromVersion); err != nil {
		return err
	}
	h.ensureMap()
	h.byField[crc] = append(h.byField[crc], &upgrade{
		kind: upgradeRename, from: fromVersion, to: toVersion,
		oldName: oldName, newName: newName,
	})
	return nil
}

// AddTypeChange registers a field type change applied when upgrading
// from fromVersion to toVersion.
func (h *UpgradeHandler) AddTypeChange(fieldName string, fromType, toType typeid.ID, fromVersion, toVersion uint32, convert func(oldValue any) (any, error)) error {
	crc := NameCRC(fieldName)
	if err := h.checkDuplicate(crc, upgradeTypeChange, fromVersion); err != nil {
		return err
	}
	h.ensureMap()
	h.byField[crc] = append(h.byField[crc], &upgrade{
		kind: upgradeTypeChange, from: fromVersion, to: toVersion,
		fromType: fromType, toType: toType, convert: convert,
	})
	return nil
}

func (h *UpgradeHandler) ensureMap() {
	if h.byField == nil {
		h.byField = make(map[uint32][]*upgrade)
	}
}

func (h *UpgradeHandler) checkDuplicate(crc uint32, kind upgradeKind, from uint32) error {
	for _, u := range h.byField[crc] {
		if u.kind == kind && u.from == from {
			return fmt.Errorf("serialize: duplicate upgrade for field (kind=%d, from=%d)", kind, from)
		}
	}
	return nil
}

// chainFor returns the upgrades applicable to crc starting at
// storedVersion, ordered per the spec: higher to-version first, and
// within equal to-version, renames before type changes.
func (h *UpgradeHandler) chainFor(crc uint32, storedVersion uint32) []*upgrade {
	var applicable []*upgrade
	for _, u := range h.byField[crc] {
		if u.from >= storedVersion {
			applicable = append(applicable, u)
		}
	}
	sort.SliceStable(applicable, func(i, j int) bool {
		a, b := applicable[i], applicable[j]
		if a.to != b.to {
			return a.to > b.to
		}
		if a.kind != b.kind {
			return a.kind == upgradeRename
		}
		return false
	})
	return applicable
}

// Apply runs every applicable upgrade against node's children in order,
// given node was stored at storedVersion.
func (h *UpgradeHandler) Apply(node *DataElementNode, storedVersion uint32) error {
	if h == nil || len(h.byField) == 0 {
		return nil
	}
	for crc := range h.byField {
		for _, u := range h.chainFor(crc, storedVersion) {
			switch u.kind {
			case upgradeRename:
				if err := applyRename(node, u); err != nil {
					return err
				}
			case upgradeTypeChange:
				if err := applyTypeChange(node, u, crc); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func applyRename(node *DataElementNode, u *upgrade) error {
	child := node.FindElement(NameCRC(u.oldName))
	if child == nil {
		// Already renamed (or never present): idempotent no-op, matching
		// the round-trip law that applying a rename twice changes nothing.
		return nil
	}
	child.Element.Name = u.newName
	child.Element.NameCRC = NameCRC(u.newName)
	return nil
}

// applyTypeChange converts the child keyed by fieldCRC - the same field
// name CRC AddTypeChange was registered under - rather than scanning for
// the first child whose type happens to match fromType, so two sibling
// fields sharing a type never get mixed up.
func applyTypeChange(node *DataElementNode, u *upgrade, fieldCRC uint32) error {
	child := node.FindElement(fieldCRC)
	if child == nil {
		return nil
	}
	if child.Element.TypeID != u.fromType {
		return nil
	}

	oldValue, err := decodeLeafAny(child)
	if err != nil {
		return fmt.Errorf("serialize: type-change upgrade: %w", err)
	}

	var newValue any
	if u.convert != nil {
		newValue, err = u.convert(oldValue)
		if err != nil {
			return fmt.Errorf("serialize: type-change upgrade convert: %w", err)
		}
	} else {
		newValue = oldValue
	}

	name := child.Element.Name
	node.RemoveElement(child)
	replacement := NewDataElementNode(name, u.toType, 1)
	if err := encodeLeafAny(replacement, newValue); err != nil {
		return fmt.Errorf("serialize: type-change upgrade encode: %w", err)
	}
	node.Children = append(node.Children, replacement)
	return nil
}
