package window

// Sliding is a fixed-capacity FIFO of prices. Pushing into a full window
// evicts the oldest value.
type Sliding struct {
	values []float64
	size   int
	index  int
	filled bool
}

// New returns an empty window. A capacity below 1 is raised to 1.
func New(capacity int) *Sliding {
	if capacity < 1 {
		capacity = 1
	}
	return &Sliding{
		values: make([]float64, capacity),
		size:   capacity,
	}
}

func (s *Sliding) Push(value float64) {
	s.values[s.index] = value
	s.index = (s.index + 1) % s.size
	if s.index == 0 {
		s.filled = true
	}
}

func (s *Sliding) Len() int {
	if s.filled {
		return s.size
	}
	return s.index
}

func (s *Sliding) Cap() int { return s.size }

// Values returns the contents oldest first.
func (s *Sliding) Values() []float64 {
	length := s.Len()
	result := make([]float64, 0, length)
	if length == 0 {
		return result
	}
	if s.filled {
		result = append(result, s.values[s.index:]...)
	}
	result = append(result, s.values[:s.index]...)
	return result
}

// Tail returns the most recent n values oldest first, or fewer if the
// window holds fewer.
func (s *Sliding) Tail(n int) []float64 {
	values := s.Values()
	if n < len(values) {
		return values[len(values)-n:]
	}
	return values
}

// Mean is the average of the held values; 0 when empty.
func (s *Sliding) Mean() float64 {
	n := s.Len()
	if n == 0 {
		return 0
	}
	sum := 0.0
	if s.filled {
		for _, v := range s.values {
			sum += v
		}
	} else {
		for _, v := range s.values[:s.index] {
			sum += v
		}
	}
	return sum / float64(n)
}

// Last returns the newest value.
func (s *Sliding) Last() (float64, bool) {
	if s.Len() == 0 {
		return 0, false
	}
	return s.values[(s.index-1+s.size)%s.size], true
}
