package main

var table [8]int

func get(i int) int {
	return table[i]
}

func main() {
	_ = get(3)
	_ = get(9)
}
