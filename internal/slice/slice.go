package slice

// Remove returns a copy of slice without the elements in [stId, endId).
func Remove[T any](slice []T, stId int, endId int) []T {
	res := make([]T, 0, len(slice)-(endId-stId))
	res = append(res, slice[:stId]...)

	return append(res, slice[endId:]...)
}

// TrimSpaces returns the first index at or after id that is not a blank.
func TrimSpaces(line []byte, id int) int {
	for id < len(line) && (line[id] == ' ' || line[id] == '\t') {
		id++
	}

	return id
}
