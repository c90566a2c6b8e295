package frame

// Checksum is a streaming CRC-16/ARC accumulator (reflected poly 0xA001, init 0).
type Checksum struct {
	acc uint16
}

func (c *Checksum) Reset() {
	c.acc = 0
}

// Update folds one byte into the accumulator.
func (c *Checksum) Update(b byte) {
	acc := c.acc
	in := uint16(b)
	for i := 0; i < 8; i++ {
		if (acc^in)&1 != 0 {
			acc = (acc >> 1) ^ 0xA001
		} else {
			acc >>= 1
		}
		in >>= 1
	}
	c.acc = acc
}

// UpdateBytes folds p[off:off+n].
func (c *Checksum) UpdateBytes(p []byte, off, n int) {
	for _, b := range p[off : off+n] {
		c.Update(b)
	}
}

// Write implements io.Writer so the checksum can sit behind io.MultiWriter.
func (c *Checksum) Write(p []byte) (int, error) {
	c.UpdateBytes(p, 0, len(p))
	return len(p), nil
}

func (c *Checksum) Value() uint16 {
	return c.acc
}
