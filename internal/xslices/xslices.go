package xslices

func Map[T, U any](elements []T, f func(T) U) []U {
	result := make([]U, len(elements))
	for index, element := range elements {
		result[index] = f(element)
	}
	return result
}

func Filter[T any](elements []T, f func(T) bool) []T {
	result := make([]T, 0)
	for _, element := range elements {
		if f(element) {
			result = append(result, element)
		}
	}
	return result
}

// Unique keeps the first occurrence of each element.
func Unique[T comparable](elements []T) []T {
	seen := make(map[T]struct{}, len(elements))
	result := make([]T, 0, len(elements))
	for _, element := range elements {
		if _, ok := seen[element]; ok {
			continue
		}
		seen[element] = struct{}{}
		result = append(result, element)
	}
	return result
}
