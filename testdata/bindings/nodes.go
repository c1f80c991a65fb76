// Package bindings mirrors a few engine node structs the way a header
// translator emits them. It is parser and generator test input.
package bindings

import "unsafe"

type NodeTag int32

const (
	NodeTag_T_Invalid   NodeTag = 0
	NodeTag_T_List      NodeTag = 1
	NodeTag_T_Plan      NodeTag = 10
	NodeTag_T_Agg       NodeTag = 11
	NodeTag_T_PlanState NodeTag = 20
	NodeTag_T_AggState  NodeTag = 21
)

const InvalidOid = 0

type Oid = uint32

type Node struct {
	type_ NodeTag
}

type ListCell struct {
	ptr_value unsafe.Pointer
}

type List struct {
	type_    NodeTag
	length   int32
	elements *ListCell
}

type Plan struct {
	type_      NodeTag
	targetlist *List
	lefttree   *Plan
	initPlan   [2]*Plan
	relid      Oid
}

type Agg struct {
	plan        Plan
	aggstrategy int32
	numCols     int32
	callback    func(int) int
}

type PlanState struct {
	type_ NodeTag
	plan  *Plan
	state unsafe.Pointer
}

type AggState struct {
	ss          PlanState
	numaggs     int32
	aggcontexts **Node
}

type Scratch struct {
	data unsafe.Pointer
}
