package arc_test

import (
	"fmt"

	"github.com/Lierrmm/gsc-tool/arc"
)

// Shows the minimum Assembly needed to produce a valid script image: one
// function with no operands at all.
func ExampleAssembler_Assemble() {
	ctx := arc.NewT6Context()
	a := arc.NewAssembler(ctx)

	asm := &arc.Assembly{
		Functions: []arc.Function{
			{Name: "main", Instructions: []arc.Instruction{
				{Op: arc.OpGetUndefined},
				{Op: arc.OpReturn},
			}},
		},
	}

	script, devmap, err := a.Assemble(asm, "")
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(len(devmap))
	ex, _ := a.Export("main")
	fmt.Println(ex.Name, ex.Params, ex.Flags)

	_ = script
	// Output:
	// 4
	// main 0 0
}
