package cache

import "context"

// Layered checks Memory before Disk and promotes disk hits into memory.
// Either layer may be nil.
type Layered struct {
	Memory *Memory
	Disk   *Disk
}

func (c *Layered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.Memory != nil {
		if b, ok, _ := c.Memory.Get(ctx, key); ok {
			return b, true, nil
		}
	}
	if c.Disk == nil {
		return nil, false, nil
	}
	b, ok, err := c.Disk.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if c.Memory != nil {
		_ = c.Memory.Save(ctx, key, b)
	}
	return b, true, nil
}

// Save writes through to both layers.
func (c *Layered) Save(ctx context.Context, key string, data []byte) error {
	if c.Memory != nil {
		_ = c.Memory.Save(ctx, key, data)
	}
	if c.Disk != nil {
		return c.Disk.Save(ctx, key, data)
	}
	return nil
}
