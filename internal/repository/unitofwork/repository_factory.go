package unitofwork

import "context"

// RepositoryFactory hands out a fresh UnitOfWork per operation. The gorm and
// in-memory stores both satisfy it.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}

// RepositoryFactoryFunc lets a plain function act as a RepositoryFactory,
// typically to wrap another factory's units of work.
type RepositoryFactoryFunc func(ctx context.Context) UnitOfWork

func (f RepositoryFactoryFunc) NewUnitOfWork(ctx context.Context) UnitOfWork {
	return f(ctx)
}
