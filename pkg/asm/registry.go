package asm

// PartRegistry binds the part ids of one Structure Definition to the
// addresses of their part-labels. Ids do not outlive the compile call; later
// calls refer to a part by its label address.
type PartRegistry struct {
	ids   map[string]Address
	order []string
}

// NewPartRegistry creates an empty registry.
func NewPartRegistry() *PartRegistry {
	return &PartRegistry{ids: make(map[string]Address)}
}

// Register binds id to addr.
func (r *PartRegistry) Register(id string, addr Address) error {
	if prev, ok := r.ids[id]; ok {
		return &Error{Kind: KindDuplicatePartID, ID: id, Address: prev}
	}
	r.ids[id] = addr
	r.order = append(r.order, id)
	return nil
}

// Resolve returns the address bound to id.
func (r *PartRegistry) Resolve(id string) (Address, error) {
	addr, ok := r.ids[id]
	if !ok {
		return "", &Error{Kind: KindUnknownPartID, ID: id}
	}
	return addr, nil
}

// IDs returns the registered ids in registration order.
func (r *PartRegistry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered ids.
func (r *PartRegistry) Len() int { return len(r.ids) }
