// Package bindings12 mirrors engine node structs of a release whose List is
// a linked cell chain. It is parser and generator test input.
package bindings12

import "unsafe"

type NodeTag int32

const (
	NodeTag_T_Invalid       NodeTag = 0
	NodeTag_T_List          NodeTag = 1
	NodeTag_T_Alias         NodeTag = 3
	NodeTag_T_Plan          NodeTag = 10
	NodeTag_T_Agg           NodeTag = 11
	NodeTag_T_PlanState     NodeTag = 20
	NodeTag_T_AggState      NodeTag = 21
	NodeTag_T_Query         NodeTag = 30
	NodeTag_T_RangeTblEntry NodeTag = 31
)

type RTEKind int32

const (
	RTEKind_RTE_RELATION        RTEKind = 0
	RTEKind_RTE_SUBQUERY        RTEKind = 1
	RTEKind_RTE_JOIN            RTEKind = 2
	RTEKind_RTE_FUNCTION        RTEKind = 3
	RTEKind_RTE_TABLEFUNC       RTEKind = 4
	RTEKind_RTE_VALUES          RTEKind = 5
	RTEKind_RTE_CTE             RTEKind = 6
	RTEKind_RTE_NAMEDTUPLESTORE RTEKind = 7
	RTEKind_RTE_RESULT          RTEKind = 8
)

type Oid = uint32

type NameData string

type Node struct {
	type_ NodeTag
}

type ListCellData struct {
	ptr_value unsafe.Pointer
	int_value int32
}

type ListCell struct {
	data ListCellData
	next *ListCell
}

type List struct {
	type_  NodeTag
	length int32
	head   *ListCell
	tail   *ListCell
}

type Alias struct {
	type_     NodeTag
	aliasname string
	colnames  *List
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

type Query struct {
	type_       NodeTag
	commandType int32
	sourceText  NameData
	rtable      *List
	jointree    *Node
}

type RangeTblEntry struct {
	type_         NodeTag
	rtekind       RTEKind
	relid         Oid
	tablesample   *Node
	subquery      *Query
	joinaliasvars *List
	functions     *List
	tablefunc     *Node
	values_lists  *List
	coltypes      *List
	coltypmods    *List
	colcollations *List
	alias         *Alias
	eref          *Alias
	securityQuals *List
}
