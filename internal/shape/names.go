package shape

// Names of the per-entity shapes. The "without" fragment is produced by
// naming.Namer.Without and is empty for top-level payloads.

func whereName(e string) string                { return e + "WhereInput" }
func whereUniqueName(e string) string          { return e + "WhereUniqueInput" }
func scalarWhereName(e string) string          { return e + "ScalarWhereInput" }
func scalarWhereAggregatesName(e string) string { return e + "ScalarWhereWithAggregatesInput" }
func listRelationFilterName(e string) string   { return e + "ListRelationFilter" }
func relationFilterName(e string) string       { return e + "RelationFilter" }
func nullableRelationFilterName(e string) string {
	return e + "NullableRelationFilter"
}

func orderByRelationName(e string) string    { return e + "OrderByWithRelationInput" }
func orderByAggregationName(e string) string { return e + "OrderByWithAggregationInput" }
func orderByRelationAggregateName(e string) string {
	return e + "OrderByRelationAggregateInput"
}

func selectName(e string) string           { return e + "Select" }
func includeName(e string) string          { return e + "Include" }
func argsName(e string) string             { return e + "Args" }
func countOutputArgsName(e string) string  { return e + "CountOutputTypeArgs" }
func countOutputSelectName(e string) string { return e + "CountOutputTypeSelect" }

func createName(e, without string) string          { return e + "Create" + without + "Input" }
func uncheckedCreateName(e, without string) string { return e + "UncheckedCreate" + without + "Input" }
func updateName(e, without string) string          { return e + "Update" + without + "Input" }
func uncheckedUpdateName(e, without string) string { return e + "UncheckedUpdate" + without + "Input" }

func createManyName(e string) string             { return e + "CreateManyInput" }
func updateManyMutationName(e string) string     { return e + "UpdateManyMutationInput" }
func uncheckedUpdateManyName(e, without string) string {
	return e + "UncheckedUpdateMany" + without + "Input"
}

func fieldUpdateOperationsName(typ string, nullable bool) string {
	if nullable {
		return "Nullable" + typ + "FieldUpdateOperationsInput"
	}
	return typ + "FieldUpdateOperationsInput"
}

// Nested relation operation shapes, named after the target entity and the
// omitted back-reference.

func createNestedManyName(t, without string) string { return t + "CreateNestedMany" + without + "Input" }
func updateNestedManyName(t, without string) string { return t + "UpdateMany" + without + "NestedInput" }
func createNestedOneName(t, without string) string  { return t + "CreateNestedOne" + without + "Input" }
func updateNestedOneName(t, without string, required bool) string {
	if required {
		return t + "UpdateOneRequired" + without + "NestedInput"
	}
	return t + "UpdateOne" + without + "NestedInput"
}

func createOrConnectName(t, without string) string { return t + "CreateOrConnect" + without + "Input" }
func upsertWithWhereUniqueName(t, without string) string {
	return t + "UpsertWithWhereUnique" + without + "Input"
}
func updateWithWhereUniqueName(t, without string) string {
	return t + "UpdateWithWhereUnique" + without + "Input"
}
func updateManyWithWhereName(t, without string) string {
	return t + "UpdateManyWithWhere" + without + "Input"
}
func upsertOneName(t, without string) string { return t + "Upsert" + without + "Input" }

// createManyNestedName names the scalar-only payload for createMany under a
// relation, keyed by the back-reference: PostCreateManyAuthorInput.
func createManyNestedName(t, inverse string) string { return t + "CreateMany" + inverse + "Input" }
func createManyEnvelopeName(t, inverse string) string {
	return t + "CreateMany" + inverse + "InputEnvelope"
}

func countAggregateInputName(e string) string { return e + "CountAggregateInput" }
func avgAggregateInputName(e string) string   { return e + "AvgAggregateInput" }
func sumAggregateInputName(e string) string   { return e + "SumAggregateInput" }
func minAggregateInputName(e string) string   { return e + "MinAggregateInput" }
func maxAggregateInputName(e string) string   { return e + "MaxAggregateInput" }

func countOrderByName(e string) string { return e + "CountOrderByAggregateInput" }
func avgOrderByName(e string) string   { return e + "AvgOrderByAggregateInput" }
func sumOrderByName(e string) string   { return e + "SumOrderByAggregateInput" }
func minOrderByName(e string) string   { return e + "MinOrderByAggregateInput" }
func maxOrderByName(e string) string   { return e + "MaxOrderByAggregateInput" }
