package mem

import "testing"

func TestPhysToVirt(t *testing.T) {
	specs := []struct {
		phys    PhysAddr
		wantErr bool
		want    VirtAddr
	}{
		{phys: 0, want: VirtAddr(DirectMapBase)},
		{phys: PhysAddr(0x100000), want: VirtAddr(DirectMapBase + 0x100000)},
		{phys: PhysAddr(DirectMapLimit - 1), want: VirtAddr(DirectMapBase + DirectMapLimit - 1)},
		{phys: PhysAddr(DirectMapLimit), wantErr: true},
		{phys: PhysAddr(DirectMapLimit + 0x1000), wantErr: true},
	}

	for specIndex, spec := range specs {
		got, err := spec.phys.ToVirt()
		if spec.wantErr {
			if err != ErrNoDirectMapping {
				t.Errorf("[spec %d] expected ErrNoDirectMapping; got %v", specIndex, err)
			}
			continue
		}

		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		if got != spec.want {
			t.Errorf("[spec %d] expected virt addr 0x%x; got 0x%x", specIndex, spec.want, got)
		}
	}
}

func TestOffset(t *testing.T) {
	if got := PhysAddr(0x1000).Offset(0x10); got != PhysAddr(0x1010) {
		t.Errorf("expected 0x1010; got 0x%x", got)
	}

	if got := VirtAddr(0x1000).Offset(0x10); got != VirtAddr(0x1010) {
		t.Errorf("expected 0x1010; got 0x%x", got)
	}
}

// phys -> virt -> phys is the identity for addresses below the direct-map
// limit, and VirtAddr.ToPhys is what implements the return leg.
func TestPhysVirtPhysRoundtrip(t *testing.T) {
	for _, phys := range []PhysAddr{0, 0x1000, 0x100000, PhysAddr(DirectMapLimit - uintptr(PageSize))} {
		virt, err := phys.ToVirt()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		back, err := virt.ToPhys()
		if err != nil {
			t.Fatalf("unexpected error from ToPhys: %v", err)
		}
		if back != phys {
			t.Errorf("roundtrip failed: phys=0x%x virt=0x%x back=0x%x", phys, virt, back)
		}
	}
}

func TestVirtToPhysRejectsAddressOutsideDirectMap(t *testing.T) {
	if _, err := VirtAddr(0).ToPhys(); err != ErrNoDirectMapping {
		t.Errorf("expected ErrNoDirectMapping for an address below the direct map; got %v", err)
	}
	if _, err := VirtAddr(DirectMapBase + DirectMapLimit).ToPhys(); err != ErrNoDirectMapping {
		t.Errorf("expected ErrNoDirectMapping for an address at the direct map limit; got %v", err)
	}
}
